package cns_console

import (
	"sync"
	"time"

	"github.com/jimsnab/go-cns-console/store"
	"github.com/jimsnab/go-lane"
)

type (
	// Saver periodically writes a local store to its data file, and once
	// more when stopped.
	Saver struct {
		mu              sync.Mutex
		l               lane.Lane
		st              *store.Local
		filename        string
		interval        time.Duration
		exitSaver       chan struct{}
		saverTerminated chan struct{}
	}
)

func NewSaver(l lane.Lane, st *store.Local, filename string, interval time.Duration) *Saver {
	if interval <= 0 {
		interval = time.Second
	}
	return &Saver{
		l:        l,
		st:       st,
		filename: filename,
		interval: interval,
	}
}

func (sv *Saver) Filename() string {
	return sv.filename
}

// Start launches the save loop; it does nothing if the loop is running or
// there is no data file.
func (sv *Saver) Start() {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.filename == "" || sv.exitSaver != nil {
		return
	}

	sv.exitSaver = make(chan struct{})
	sv.saverTerminated = make(chan struct{})
	go func() {
		timer := time.NewTicker(sv.interval)
		for {
			select {
			case <-sv.exitSaver:
				sv.l.Trace("saver loop is exiting")
				timer.Stop()
				sv.save()
				sv.saverTerminated <- struct{}{}
				return
			case <-timer.C:
				sv.save()
			}
		}
	}()
}

// Stop ends the save loop after a final save.
func (sv *Saver) Stop() {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.exitSaver == nil {
		return
	}

	sv.l.Tracef("closing store saver")
	sv.exitSaver <- struct{}{}
	<-sv.saverTerminated
	sv.exitSaver = nil
	sv.l.Tracef("store saver closed")
}

func (sv *Saver) save() {
	if err := sv.st.Save(sv.filename); err != nil {
		sv.l.Errorf("periodic save to %s failed: %s", sv.filename, err)
	}
}
