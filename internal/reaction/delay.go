package reaction

import "fmt"

// Delay completes once the given number of beats has elapsed since Start.
type Delay struct {
	*Base
	beats uint64
	until uint64
}

// NewDelay waits beats beats.
func NewDelay(name string, beats uint64) *Delay {
	return &Delay{Base: NewBase(name), beats: beats}
}

func (d *Delay) Start(t Tick) error {
	if err := d.Begin(); err != nil {
		return err
	}
	d.until = t.Beat + d.beats
	if d.beats == 0 {
		d.End(nil)
	}
	return nil
}

func (d *Delay) Poll(t Tick) Status {
	if d.Status() == Running && t.Beat >= d.until {
		d.End(nil)
	}
	return d.Status()
}

func (d *Delay) Abort() {
	d.End(ErrAborted)
}

func (d *Delay) String() string {
	return fmt.Sprintf("delay(%d)", d.beats)
}
