package main

import (
	"fmt"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/config"
	"github.com/tigerbot-team/pigpen/pkg/drivebus"
	"github.com/tigerbot-team/pigpen/pkg/hardware"
)

func main() {
	fmt.Println("Drive board test program")
	cfg := config.Default()
	board, err := drivebus.Open(cfg.Hardware.I2CDevice, cfg.Hardware.I2CAddress)
	if err != nil {
		panic(err)
	}
	defer board.Close()
	fmt.Println("Opened drive board. Enabling watchdog...")

	if err := board.SetWatchdog(time.Second); err != nil {
		panic(err)
	}
	if err := board.SetBrakeModes(hardware.BrakeCoast, hardware.BrakeCoast); err != nil {
		panic(err)
	}
	fmt.Println("Watchdog enabled.")

	// Ramp up and down in each direction, printing what the encoders see.
	var powers []int8
	for p := 0; p <= 60; p += 10 {
		powers = append(powers, int8(p))
	}
	for p := 60; p >= -60; p -= 10 {
		powers = append(powers, int8(p))
	}
	for p := -60; p <= 0; p += 10 {
		powers = append(powers, int8(p))
	}

	for _, p := range powers {
		_ = board.SetMotorPowers(p, p)
		time.Sleep(250 * time.Millisecond)
		ticks, err := board.ReadEncoders()
		battV, _ := board.BattVolts()
		status, _ := board.Status()
		faults, _ := board.FaultCount()
		fmt.Printf("power=%4d ticks=%v %.2fV status=%x faults=%d err=%v\n", p, ticks, battV, status, faults, err)
	}
	_ = board.SetMotorPowers(0, 0)
}
