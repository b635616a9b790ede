// Package routine describes autonomous routines as lists of drive commands in
// YAML, and runs them.
package routine

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/tigerbot-team/pigpen/pkg/pid"
)

const (
	OpSetPose        = "set_pose"
	OpMove           = "move"
	OpMoveToX        = "move_to_x"
	OpMoveToY        = "move_to_y"
	OpMoveBackToX    = "move_back_to_x"
	OpMoveBackToY    = "move_back_to_y"
	OpTurn           = "turn"
	OpSweepRight     = "sweep_right"
	OpSweepLeft      = "sweep_left"
	OpSweepRightBack = "sweep_right_back"
	OpSweepLeftBack  = "sweep_left_back"
	OpWait           = "wait"
	OpWaitTurn       = "wait_turn"
	OpPause          = "pause"
	OpDrivePower     = "drive_power"
	OpTimedDrive     = "timed_drive"
	OpBrake          = "brake"
	OpCoast          = "coast"
	OpStop           = "stop"
)

// Step is one command.  Which fields matter depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// Distance for move, coordinate for the move_to family.
	Target    float64 `yaml:"target"`
	Heading   float64 `yaml:"heading"`
	AccelStep int     `yaml:"accel_step"`

	// Turns.  Speed is the speed of the side named by the sweep: the right
	// side for sweep_right and sweep_left_back, the left side otherwise.
	Degrees   float64  `yaml:"degrees"`
	Speed     float64  `yaml:"speed"`
	Threshold *float64 `yaml:"threshold"`

	// set_pose.
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Theta float64 `yaml:"theta"`

	// drive_power and timed_drive.
	Left  float64 `yaml:"left"`
	Right float64 `yaml:"right"`

	// pause and timed_drive.
	Duration time.Duration `yaml:"duration"`

	Async      bool           `yaml:"async"`
	Fluid      bool           `yaml:"fluid"`
	Timeout    *time.Duration `yaml:"timeout"`
	Color      *int           `yaml:"color"`
	Correction *float64       `yaml:"correction"`
	Gains      *pid.Gains     `yaml:"gains"`
	TurnGains  *pid.Gains     `yaml:"turn_gains"`
}

type Routine struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

var knownOps = map[string]bool{
	OpSetPose: true, OpMove: true, OpMoveToX: true, OpMoveToY: true,
	OpMoveBackToX: true, OpMoveBackToY: true, OpTurn: true,
	OpSweepRight: true, OpSweepLeft: true, OpSweepRightBack: true, OpSweepLeftBack: true,
	OpWait: true, OpWaitTurn: true, OpPause: true, OpDrivePower: true,
	OpTimedDrive: true, OpBrake: true, OpCoast: true, OpStop: true,
}

func (r Routine) Validate() error {
	if r.Name == "" {
		return errors.New("routine has no name")
	}
	for i, s := range r.Steps {
		if !knownOps[s.Op] {
			return errors.Errorf("routine %s step %d: unknown op %q", r.Name, i, s.Op)
		}
		if s.Threshold != nil && *s.Threshold < 0 {
			return errors.Errorf("routine %s step %d: negative threshold", r.Name, i)
		}
		if (s.Op == OpPause || s.Op == OpTimedDrive) && s.Duration <= 0 {
			return errors.Errorf("routine %s step %d: %s needs a duration", r.Name, i, s.Op)
		}
	}
	return nil
}

// Set is the list of routines the robot can run, with one selected.
type Set struct {
	Routines []Routine `yaml:"routines"`

	index int
}

func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to parse routines")
	}
	if len(s.Routines) == 0 {
		return nil, errors.New("no routines defined")
	}
	names := map[string]bool{}
	for _, r := range s.Routines {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if names[r.Name] {
			return nil, errors.Errorf("routine %s defined twice", r.Name)
		}
		names[r.Name] = true
	}
	return &s, nil
}

func Load(path string) (*Set, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read routines")
	}
	s, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "bad routines in %s", path)
	}
	return s, nil
}

// Select picks the routine at index i, wrapping round in either direction.
func (s *Set) Select(i int) Routine {
	n := len(s.Routines)
	s.index = ((i % n) + n) % n
	return s.Routines[s.index]
}

func (s *Set) Next() Routine {
	return s.Select(s.index + 1)
}

func (s *Set) Prev() Routine {
	return s.Select(s.index - 1)
}

func (s *Set) Index() int {
	return s.index
}

func (s *Set) Current() Routine {
	return s.Routines[s.index]
}

func (s *Set) ByName(name string) (Routine, bool) {
	for i, r := range s.Routines {
		if r.Name == name {
			s.index = i
			return r, true
		}
	}
	return Routine{}, false
}
