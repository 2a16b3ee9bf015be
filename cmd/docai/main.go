package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docai-cli/internal/app"
	"docai-cli/internal/tui"
)

const version = "1.0.0"

func loadApplication(notify app.Notifier) (*app.Application, error) {
	cfg, err := app.LoadConfig(app.DefaultConfigPath())
	if err != nil {
		return nil, err
	}
	return app.NewApplication(cfg, notify), nil
}

// stderrNotifier prints transient notices for one-shot commands, where
// there is no toast area.
func stderrNotifier(n app.Notice) {
	prefix := "info"
	if n.IsErr {
		prefix = "error"
	}
	if n.Detail != "" {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", prefix, n.Title, n.Detail)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, n.Title)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func prompt(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func generateCompletion(cmd *cobra.Command, shell string) error {
	root := cmd.Root()
	switch shell {
	case "bash":
		return root.GenBashCompletion(os.Stdout)
	case "zsh":
		return root.GenZshCompletion(os.Stdout)
	case "fish":
		return root.GenFishCompletion(os.Stdout, true)
	default:
		return fmt.Errorf("unsupported shell: %s", shell)
	}
}

func main() {
	root := &cobra.Command{
		Use:     "docai",
		Short:   "DocAI - chat with your documents from the terminal",
		Long:    "DocAI is a terminal client for the DocAI document question-answering service.\n\nRun without arguments for the interactive TUI, or use the subcommands for one-shot operations.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := loadApplication(nil)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			p := tea.NewProgram(tui.New(application), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	uploadCmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for question answering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			application, err := loadApplication(stderrNotifier)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			fh, err := app.NewFileHandle(args[0])
			if err != nil {
				return err
			}

			lastPct := -1
			doc, err := application.Upload.SelectFile(ctx, fh, application.Identity(), func(pct int) {
				if pct/10 != lastPct/10 {
					fmt.Fprintf(os.Stderr, "\ruploading… %d%%", pct)
					lastPct = pct
				}
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			if err := application.Credentials.SetLastDocumentID(doc.ID); err != nil {
				application.Logger.Warn("could not remember document id")
			}
			fmt.Printf("%s\t%s\t%s\n", doc.ID, doc.Filename, doc.FileType)
			return nil
		},
	}

	var askDocID string
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about an uploaded document",
		Long:  "Ask a question about an uploaded document.\n\nUses --doc when given, otherwise the most recently uploaded document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			application, err := loadApplication(stderrNotifier)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			docID := askDocID
			if docID == "" {
				docID = application.Credentials.LastDocumentID()
			}
			if docID == "" {
				return app.ErrNoActiveDocument
			}
			application.Session.AdoptDocument(app.Document{ID: docID, UploadedAt: time.Now()})

			reply, err := application.Chat.Ask(ctx, args[0], application.Identity())
			if err != nil {
				return err
			}
			fmt.Println(reply.Content)
			return nil
		},
	}
	askCmd.Flags().StringVarP(&askDocID, "doc", "d", "", "Document id to query")

	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "List your uploaded documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			application, err := loadApplication(stderrNotifier)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			docs, err := application.Client.ListDocuments(ctx, application.Identity())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("no documents uploaded yet")
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%s\t%s\t%s\t%s\n", d.ID, d.Filename, d.FileType, d.UploadedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <document-id>",
		Short: "Delete an uploaded document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			application, err := loadApplication(stderrNotifier)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			if err := application.Client.Delete(ctx, args[0], application.Identity()); err != nil {
				return err
			}
			if application.Credentials.LastDocumentID() == args[0] {
				_ = application.Credentials.SetLastDocumentID("")
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}

	var loginEmail, loginPassword string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store your identity locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			application, err := loadApplication(stderrNotifier)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			email := loginEmail
			if email == "" {
				if email, err = prompt("email"); err != nil {
					return err
				}
			}
			password := loginPassword
			if password == "" {
				if password, err = prompt("password"); err != nil {
					return err
				}
			}

			result, err := application.Client.Login(ctx, email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := application.Credentials.SetIdentity(result.User, result.Token); err != nil {
				return err
			}
			fmt.Println("logged in")
			return nil
		},
	}
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")

	var signupName, signupEmail, signupPassword string
	signupCmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			application, err := loadApplication(stderrNotifier)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			name := signupName
			if name == "" {
				if name, err = prompt("name"); err != nil {
					return err
				}
			}
			email := signupEmail
			if email == "" {
				if email, err = prompt("email"); err != nil {
					return err
				}
			}
			password := signupPassword
			if password == "" {
				if password, err = prompt("password"); err != nil {
					return err
				}
			}

			result, err := application.Client.Signup(ctx, name, email, password)
			if err != nil {
				return fmt.Errorf("signup failed: %w", err)
			}
			if err := application.Credentials.SetIdentity(result.User, result.Token); err != nil {
				return err
			}
			fmt.Println("account created, logged in")
			return nil
		},
	}
	signupCmd.Flags().StringVar(&signupName, "name", "", "Display name")
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "Account email")
	signupCmd.Flags().StringVar(&signupPassword, "password", "", "Account password")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			application, err := loadApplication(stderrNotifier)
			if err != nil {
				return err
			}
			defer application.Logger.Sync()

			// Best-effort server-side invalidation; local state is
			// cleared regardless.
			if err := application.Client.Logout(ctx, application.Identity()); err != nil {
				application.Logger.Warn("logout call failed")
			}
			if err := application.Credentials.Clear(); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}

	completionCmd := &cobra.Command{
		Use:   "completion [shell]",
		Short: "Generate shell completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateCompletion(cmd, args[0])
		},
	}

	root.AddCommand(uploadCmd, askCmd, docsCmd, rmCmd, loginCmd, signupCmd, logoutCmd, completionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
