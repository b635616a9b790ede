package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/config"
	"github.com/tigerbot-team/pigpen/pkg/robot"
	"github.com/tigerbot-team/pigpen/pkg/routine"
)

func main() {
	fmt.Println("---- PigPen ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	cfg := config.Default()
	if path := os.Getenv("PIGPEN_CONFIG"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
	}

	routinesFile := os.Getenv("PIGPEN_ROUTINES")
	if routinesFile == "" {
		routinesFile = "/etc/pigpen/routines.yaml"
	}
	routines, err := routine.Load(routinesFile)
	if err != nil {
		log.Fatal(err)
	}
	rt := routines.Current()
	if name := os.Getenv("PIGPEN_ROUTINE"); name != "" {
		var ok bool
		if rt, ok = routines.ByName(name); !ok {
			if idx, err := strconv.Atoi(name); err == nil {
				rt = routines.Select(idx)
			} else {
				log.Fatalf("No routine called %q", name)
			}
		}
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	registerSignalHandlers(cancel)

	r, err := robot.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		fmt.Println("Zeroing motors for shut down")
		r.Close()
		time.Sleep(100 * time.Millisecond)
	}()

	fmt.Printf("----- %s -----\n", rt.Name)
	if err := routine.NewRunner(r.Drive, r.Tracker).Run(ctx, rt); err != nil {
		fmt.Println("Routine failed:", err)
	}
	p := r.Tracker.Pose()
	fmt.Printf("Final pose: x=%.2f y=%.2f theta=%.2f\n", p.X, p.Y, p.Theta)
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
