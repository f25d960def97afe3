// Command kaiwa is a terminal conversation partner for practising Japanese.
//
// Usage:
//
//	kaiwa --gateway http://localhost:8080
//	kaiwa --model gemma3 --translation-model gemma3
//
// Turns are served by a local Ollama model when one is available and by the
// kaiwa gateway otherwise. Type /t to translate the last reply, /t N to
// translate turn N, /history to list the conversation and /quit to leave.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/codyseavey/kaiwa/internal/session"
)

// CLI defines the command-line interface.
type CLI struct {
	Gateway          string        `help:"Gateway base URL." default:"http://localhost:8080" env:"KAIWA_GATEWAY_URL"`
	Ollama           string        `help:"Local Ollama URL." default:"http://localhost:11434" env:"OLLAMA_HOST"`
	Model            string        `help:"Local conversation model (empty = always use the gateway)." env:"KAIWA_LOCAL_MODEL"`
	TranslationModel string        `name:"translation-model" help:"Local translation model (empty = always use the gateway)." env:"KAIWA_LOCAL_TRANSLATION_MODEL"`
	ProbeTimeout     time.Duration `name:"probe-timeout" help:"How long to wait for the local model server." default:"3s"`
}

func (c *CLI) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := session.Select(ctx, session.SelectorConfig{
		GatewayURL:        c.Gateway,
		OllamaURL:         c.Ollama,
		ConversationModel: c.Model,
		TranslationModel:  c.TranslationModel,
		ProbeTimeout:      c.ProbeTimeout,
	})

	conv, trans := s.Backends()
	fmt.Printf("会話を始めましょう！ (conversation: %s, translation: %s)\n", conv, trans)
	return repl(ctx, s, os.Stdin, os.Stdout)
}

func repl(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/history":
			for i, turn := range s.Log().Turns() {
				fmt.Fprintf(out, "%3d %s: %s\n", i, turn.Speaker(), turn.Content)
			}
			continue
		case line == "/t" || strings.HasPrefix(line, "/t "):
			index := s.Log().Len() - 1
			if arg := strings.TrimSpace(strings.TrimPrefix(line, "/t")); arg != "" {
				n, err := strconv.Atoi(arg)
				if err != nil {
					fmt.Fprintf(out, "invalid turn number %q\n", arg)
					continue
				}
				index = n
			}
			translated, err := s.Translate(ctx, index)
			if err != nil {
				fmt.Fprintf(out, "translation failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "  (%s)\n", translated)
			continue
		}

		reply, err := s.Send(ctx, line)
		fmt.Fprintln(out, reply)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  [%v]\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("kaiwa"),
		kong.Description("Practise Japanese conversation from the terminal."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
