package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/avalia-cli/internal/agent"
)

var (
	chatContext     string
	chatContextFile string
	chatShowSteps   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask the assistant about the survey data",
	Long: `With a question argument, answers once and exits. Without one, starts an
interactive session on stdin; type /reset to clear the conversation and /exit to quit.
--context or --context-file prepends a "screen context" block (dashboard definitions
and visible numbers) to the question.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		screen := chatContext
		if chatContextFile != "" {
			b, err := os.ReadFile(chatContextFile)
			if err != nil {
				return fmt.Errorf("read context file: %w", err)
			}
			screen = string(b)
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		ag, err := a.NewAgent()
		if err != nil {
			return err
		}
		sess := ag.NewSession()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			return askOnce(cmd.Context(), ag, sess, args[0], screen, out)
		}
		fmt.Fprintf(out, "Avalia chat (sessão %s). /reset limpa a conversa, /exit sai.\n", sess.ID)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "\n> ")
			if !sc.Scan() {
				return sc.Err()
			}
			line := strings.TrimSpace(sc.Text())
			switch line {
			case "":
				continue
			case "/exit", "/quit":
				return nil
			case "/reset":
				sess.Reset()
				fmt.Fprintln(out, "Conversa reiniciada.")
				continue
			}
			if err := askOnce(cmd.Context(), ag, sess, line, screen, out); err != nil {
				fmt.Fprintln(os.Stderr, "✗ Error:", err)
			}
		}
	},
}

func askOnce(ctx context.Context, ag *agent.Agent, sess *agent.Session, question, screen string, out io.Writer) error {
	ans, err := ag.Ask(ctx, sess, question, screen)
	if err != nil {
		return err
	}
	if chatShowSteps {
		for _, st := range ans.Steps {
			fmt.Fprintf(out, "→ %s %v\n%s\n\n", st.Tool, st.Args, st.Result)
		}
	}
	fmt.Fprintln(out, ans.Text)
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&chatContext, "context", "", "screen context block to prepend")
	chatCmd.Flags().StringVar(&chatContextFile, "context-file", "", "read the screen context from a file")
	chatCmd.Flags().BoolVar(&chatShowSteps, "show-steps", false, "print each tool call and its result")
	rootCmd.AddCommand(chatCmd)
}
