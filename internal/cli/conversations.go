package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/spf13/cobra"
)

var (
	showJSON bool

	appendAt            int
	appendType          string
	appendTranscription string
	appendImages        []string
	appendAnswer        string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty conversation",
	Args:  cobra.NoArgs,
	RunE:  runCreate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's conversations, most recently updated first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var renameCmd = &cobra.Command{
	Use:   "rename <conversation-id> <title>",
	Short: "Set a conversation title",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var appendCmd = &cobra.Command{
	Use:   "append <conversation-id> <content>",
	Short: "Append a user message and its answer",
	Long: `Append a user message and the assistant answer to a conversation.

By default the exchange is added at the end of the log. With --at N the log is
cut at index N first, discarding message N and everything after it; this is
how an earlier message is edited. 'chatlog show' prints each message's index.

Examples:
  chatlog append -u 42 <id> "What is the capital of Italy" --answer Rome
  chatlog append -u 42 <id> "And of Spain" --answer Madrid --at 2
  chatlog append -u 42 <id> "" --type image --image https://example.com/a.png --answer "A cat"`,
	Args: cobra.ExactArgs(2),
	RunE: runAppend,
}

func init() {
	for _, cmd := range []*cobra.Command{createCmd, listCmd, showCmd, renameCmd, appendCmd} {
		addUserFlag(cmd)
	}

	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the conversation as JSON")

	appendCmd.Flags().IntVar(&appendAt, "at", -1, "log index to branch at (default: end of log)")
	appendCmd.Flags().StringVarP(&appendType, "type", "t", string(models.MessageTypeText), "message type: text, image or audio")
	appendCmd.Flags().StringVar(&appendTranscription, "transcription", "", "transcription of an audio message")
	appendCmd.Flags().StringSliceVar(&appendImages, "image", nil, "image reference (repeatable)")
	appendCmd.Flags().StringVarP(&appendAnswer, "answer", "a", "", "assistant answer")
	_ = appendCmd.MarkFlagRequired("answer")
}

func runCreate(cmd *cobra.Command, args []string) error {
	id, err := svc.Create(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	fmt.Println(id)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	list, err := svc.ListByUser(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	newRenderer(os.Stdout).list(os.Stdout, list)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := parseConversationID(args[0])
	if err != nil {
		return err
	}
	conv, err := svc.Get(context.Background(), userID, id)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}

	if showJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	}
	newRenderer(os.Stdout).transcript(os.Stdout, conv)
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	id, err := parseConversationID(args[0])
	if err != nil {
		return err
	}
	conv, err := svc.Rename(context.Background(), userID, id, args[1])
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	fmt.Printf("Renamed %s to %q\n", conv.ID, conv.Title)
	return nil
}

func runAppend(cmd *cobra.Command, args []string) error {
	id, err := parseConversationID(args[0])
	if err != nil {
		return err
	}
	msg, err := buildUserMessage(args[1])
	if err != nil {
		return err
	}

	in := store.AppendInput{
		UserID:         userID,
		ConversationID: id,
		Message:        msg,
		Answer:         appendAnswer,
	}
	if cmd.Flags().Changed("at") {
		in.BranchPoint = store.BranchAt(appendAt)
	}

	conv, err := svc.AppendMessage(context.Background(), in)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	newRenderer(os.Stdout).transcript(os.Stdout, conv)
	return nil
}

func buildUserMessage(content string) (models.UserMessage, error) {
	msg := models.UserMessage{
		Type:    models.MessageType(appendType),
		Content: content,
		Images:  appendImages,
	}
	if !msg.Type.Valid() {
		return models.UserMessage{}, fmt.Errorf("unknown message type %q", appendType)
	}
	if appendTranscription != "" {
		t := appendTranscription
		msg.Transcription = &t
	}
	return msg, nil
}

func parseConversationID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid conversation id %q: %w", s, err)
	}
	return id, nil
}
