// winderctl is the host-side client for the winder execution
// protocol.
//
// Usage:
//
//	winderctl [options] oneshot <command>
//	winderctl [options] run <program.gcode>
//	winderctl [options] repl
//
// Options:
//
//	-addr string    Controller address (default "192.168.11.40:1234",
//	                or WINDER_ADDR)
//	-serial string  Serial device instead of TCP (e.g. /dev/ttyACM0)
//	-baud int       Serial baud rate (default 115200)
//	-timeout duration  Dial timeout (default 10s)
//
// Examples:
//
//	# Jog the carriage
//	winderctl oneshot "G0 X20"
//
//	# Stream a generated winding program
//	winderctl run bobbin.gcode
//
//	# Interactive session
//	winderctl repl
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"winder-go/pkg/gcode"
	"winder-go/pkg/link"
	"winder-go/pkg/serial"
)

const defaultAddr = "192.168.11.40:1234"

func main() {
	addr := flag.String("addr", "", "Controller address (default "+defaultAddr+")")
	serialDev := flag.String("serial", "", "Serial device instead of TCP")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	timeout := flag.Duration("timeout", 10*time.Second, "Dial timeout")
	flag.Parse()

	_ = godotenv.Load()
	if *addr == "" {
		*addr = os.Getenv("WINDER_ADDR")
	}
	if *addr == "" {
		*addr = defaultAddr
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var dial link.Dialer
	if *serialDev != "" {
		cfg := serial.DefaultConfig()
		cfg.Device = *serialDev
		cfg.BaudRate = *baud
		dial = link.SerialDialer(cfg)
	} else {
		dial = link.TCPDialer(*addr, *timeout)
	}
	client := link.NewClient(dial)
	defer client.Close()

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "oneshot":
		err = oneshot(client, flag.Args()[1:])
	case "run":
		err = run(client, flag.Args()[1:])
	case "repl":
		err = repl(client)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// oneshot validates and sends a single command, e.g. "G0 X20".
func oneshot(client *link.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("oneshot takes exactly one quoted command")
	}
	cmd, err := gcode.Parse(args[0])
	if err != nil {
		return err
	}
	if err := client.Exec(cmd); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

// run validates a program file and streams it line by line, stopping
// at the first rejection.
func run(client *link.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("run takes exactly one program file")
	}
	text, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	cmds, err := gcode.ParseProgram(string(text))
	if err != nil {
		return err
	}
	for i, cmd := range cmds {
		if err := client.Exec(cmd); err != nil {
			return fmt.Errorf("command %d (%s): %w", i+1, cmd.String(), err)
		}
	}
	fmt.Printf("sent %d commands\n", len(cmds))
	return nil
}

// repl forwards stdin lines verbatim and prints each ack.
func repl(client *link.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("winderctl repl (Ctrl+D to exit)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		ack, err := client.Send(line)
		if err != nil && ack == "" {
			return err
		}
		fmt.Println(ack)
	}
}
