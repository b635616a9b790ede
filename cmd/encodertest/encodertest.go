package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/config"
	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/robot"
)

// Push the robot around by hand and watch the tracking wheels and pose.
func main() {
	cfg := config.Default()
	if path := os.Getenv("PIGPEN_CONFIG"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			log.Fatal(err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, err := robot.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()
	r.Drive.Coast()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p := r.Tracker.Pose()
		fmt.Printf("L=%6d R=%6d S=%6d  x=%7.2f y=%7.2f theta=%7.2f\n",
			r.HW.ReadTicks(hardware.WheelLeft),
			r.HW.ReadTicks(hardware.WheelRight),
			r.HW.ReadTicks(hardware.WheelRear),
			p.X, p.Y, p.Theta)
	}
}
