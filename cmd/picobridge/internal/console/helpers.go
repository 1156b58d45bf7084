package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal"
	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal/gateway"
	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// ConsoleNick is the nick console notices carry.
const ConsoleNick = "console"

var errUsage = errors.New("usage: <uid> <text>")

func consoleCmd(configPath string, debug bool) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := internal.SetupLogging(cfg, debug); err != nil {
		return err
	}

	ctx := context.Background()
	g, err := gateway.Start(ctx, cfg)
	if err != nil {
		return err
	}
	defer g.Shutdown(ctx)

	fmt.Printf("%s Console ready. Type \"<uid> <text>\", or exit to stop\n\n", internal.Logo)
	interactiveMode(ctx, g.Router)
	return nil
}

func interactiveMode(ctx context.Context, r *bridge.Router) {
	prompt := fmt.Sprintf("%s > ", internal.Logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".picobridge_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    newCompleter(r),
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, r, os.Stdin)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleLine(ctx, r, line) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, r *bridge.Router, in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		fmt.Printf("%s > ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleLine(ctx, r, line) {
			return
		}
	}
}

// handleLine returns false when the operator asked to leave.
func handleLine(ctx context.Context, r *bridge.Router, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Println("Goodbye!")
		return false
	}
	if err := Inject(ctx, r, input); err != nil {
		fmt.Printf("Error: %v\n", err)
		return true
	}
	fmt.Println("✓ sent")
	return true
}

// Inject parses "<uid> <text>" and sends text through r as a notice from
// that chat.
func Inject(ctx context.Context, r *bridge.Router, line string) error {
	uid, text, ok := strings.Cut(strings.TrimSpace(line), " ")
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return errUsage
	}

	u := r.Parser().Parse(uid)
	if !u.Valid() {
		return fmt.Errorf("invalid uid %q", uid)
	}
	h, ok := r.Handler(u.Client)
	if !ok {
		return fmt.Errorf("no handler for %s", u.Client)
	}

	c := bridge.NewContext(bridge.Context{
		From:    u.ID,
		To:      u.ID,
		Nick:    ConsoleNick,
		Text:    text,
		Extra:   bridge.Extra{IsNotice: true},
		Handler: h,
	})
	logger.InfoCF("console", "Injecting notice", map[string]any{"to": u.UID, "msg_id": c.MsgID})
	if !r.SendContext(ctx, c) {
		return fmt.Errorf("%s: not delivered", u.UID)
	}
	return nil
}

// newCompleter offers the routed source uids as the first word.
func newCompleter(r *bridge.Router) *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(r.Sources())+2)
	for _, src := range r.Sources() {
		items = append(items, readline.PcItem(src))
	}
	items = append(items, readline.PcItem("exit"), readline.PcItem("quit"))
	return readline.NewPrefixCompleter(items...)
}
