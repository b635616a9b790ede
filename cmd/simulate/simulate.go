// Command simulate runs a routine against the simulated robot and draws the
// path it drove.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/config"
	"github.com/tigerbot-team/pigpen/pkg/robot"
	"github.com/tigerbot-team/pigpen/pkg/routine"
	"github.com/tigerbot-team/pigpen/pkg/tracer"
)

func main() {
	configFile := flag.String("config", "", "robot config YAML; defaults are used if empty")
	routinesFile := flag.String("routines", "routines.yaml", "routines YAML")
	index := flag.Int("routine", 0, "index of the routine to run")
	out := flag.String("out", "path.png", "where to write the path image")
	size := flag.Int("size", 800, "image size in pixels")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatal(err)
		}
	}
	cfg.Hardware.Backend = config.BackendSim

	routines, err := routine.Load(*routinesFile)
	if err != nil {
		log.Fatal(err)
	}
	rt := routines.Select(*index)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r, err := robot.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	rec := tracer.New(r.Tracker, 20*time.Millisecond)
	var wg sync.WaitGroup
	wg.Add(1)
	go rec.Loop(ctx, &wg)

	start := time.Now()
	runErr := routine.NewRunner(r.Drive, r.Tracker).Run(ctx, rt)
	cancel()
	wg.Wait()
	r.Close()

	p := r.Tracker.Pose()
	x, y, h := r.Sim.TruePose()
	fmt.Printf("%s finished in %v: %v\n", rt.Name, time.Since(start), runErr)
	fmt.Printf("Odometry: x=%.2f y=%.2f theta=%.2f\n", p.X, p.Y, p.Theta)
	fmt.Printf("Actual:   x=%.2f y=%.2f theta=%.2f\n", x, y, h)

	if err := tracer.SavePNG(*out, rec.Samples(), *size); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Wrote", *out)
}
