package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/thatsimonsguy/general-thermostat/db"
)

var (
	keyPrintf  = color.New(color.FgCyan).SprintfFunc()
	onPrintf   = color.New(color.FgRed).SprintfFunc()
	offPrintf  = color.New(color.FgBlue).SprintfFunc()
	okPrintf   = color.New(color.FgGreen).SprintfFunc()
	failPrintf = color.New(color.FgRed, color.Bold).SprintfFunc()
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, name, entity, mode, key, value string
	var limit int
	flag.StringVar(&dbPath, "db", "data/thermostat.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: show, set-mode, set-attr, clear, transitions")
	flag.StringVar(&name, "name", "General Thermostat", "Thermostat name the snapshot is stored under")
	flag.StringVar(&entity, "entity", "", "Actuator entity for transitions")
	flag.StringVar(&mode, "mode", "", "HVAC mode for set-mode")
	flag.StringVar(&key, "key", "", "Snapshot attribute for set-attr")
	flag.StringVar(&value, "value", "", "Attribute value for set-attr")
	flag.IntVar(&limit, "limit", 20, "Number of transitions to show")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of thermostat-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/thermostat.db')")
		fmt.Println("  -cmd string\tCommand to run: show, set-mode, set-attr, clear, transitions")
		fmt.Println("  -name string\tThermostat name the snapshot is stored under")
		fmt.Println("  -entity string\tActuator entity for transitions")
		fmt.Println("  -mode string\tHVAC mode for set-mode")
		fmt.Println("  -key string\tSnapshot attribute for set-attr")
		fmt.Println("  -value string\tAttribute value for set-attr")
		fmt.Println("  -limit int\tNumber of transitions to show")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "show":
		var attrs map[string]string
		attrs, err = db.ShowSnapshotCLI(dbPath, name)
		if err == nil {
			printSnapshot(name, attrs)
		}
	case "set-mode":
		err = db.SetHVACModeCLI(dbPath, name, mode)
	case "set-attr":
		if key == "" {
			fmt.Println(failPrintf("Error: key is required"))
			os.Exit(1)
		}
		err = db.SetAttributeCLI(dbPath, name, key, value)
	case "clear":
		err = db.ClearSnapshotCLI(dbPath, name)
	case "transitions":
		if entity == "" {
			fmt.Println(failPrintf("Error: entity is required"))
			os.Exit(1)
		}
		var transitions []db.Transition
		transitions, err = db.TransitionsCLI(dbPath, entity, limit)
		if err == nil {
			printTransitions(transitions)
		}
	default:
		fmt.Println(failPrintf("Invalid command"))
		os.Exit(1)
	}

	if err != nil {
		fmt.Println(failPrintf("Command %s failed: %v", command, err))
		os.Exit(1)
	}
	fmt.Println(okPrintf("Command %s completed successfully", command))
}

func printSnapshot(name string, attrs map[string]string) {
	if len(attrs) == 0 {
		fmt.Printf("No snapshot stored for %q\n", name)
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", keyPrintf("%-26s", k), attrs[k])
	}
}

func printTransitions(transitions []db.Transition) {
	for _, t := range transitions {
		state := offPrintf("off")
		if t.Active {
			state = onPrintf("on ")
		}
		fmt.Printf("%s  %s  %s\n", t.At.Local().Format(time.RFC3339), state, t.Entity)
	}
}
