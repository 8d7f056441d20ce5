package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- CONVERSATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON conversation TYPE int;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string;
    -- Ordered message log: [{msgtype, id, role, content, transcription?, images?}]
    DEFINE FIELD IF NOT EXISTS conversation ON conversation TYPE array<object> FLEXIBLE;
    -- Note: Must REMOVE then DEFINE to ensure FLEXIBLE is set (IF NOT EXISTS won't update existing field)
    REMOVE FIELD IF EXISTS conversation.* ON conversation;
    DEFINE FIELD conversation.* ON conversation TYPE object FLEXIBLE;
    -- Bumped by every committed update; writers compare-and-set on it
    DEFINE FIELD IF NOT EXISTS version ON conversation TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime READONLY;
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime;

    DEFINE INDEX IF NOT EXISTS conversation_user ON conversation FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS conversation_user_updated ON conversation FIELDS user_id, updated_at;
`
