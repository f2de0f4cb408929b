package lane

import "slices"

// Status is the occupancy state of one lane
type Status uint8

const (
	Idle Status = iota
	Running
)

func (s Status) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Picker selects one index in [0, n); used to break ties between idle lanes
type Picker func(n int) int

// First always picks the lowest idle lane
func First(int) int { return 0 }

// Registry tracks lane status and the ordered membership list of each lane
// Not safe for concurrent use: the owning scheduler serializes all calls
type Registry struct {
	status  []Status
	members [][]string
	pick    Picker
}

// New creates n idle lanes; a nil picker selects the first idle lane
func New(n int, pick Picker) *Registry {
	if n < 1 {
		n = 1
	}
	if pick == nil {
		pick = First
	}
	return &Registry{
		status:  make([]Status, n),
		members: make([][]string, n),
		pick:    pick,
	}
}

// Len returns the fixed lane count
func (r *Registry) Len() int {
	return len(r.status)
}

// HasIdle reports whether any lane is idle
func (r *Registry) HasIdle() bool {
	return slices.Contains(r.status, Idle)
}

// FindIdleLane picks an idle lane and marks it running in the same call
func (r *Registry) FindIdleLane() (int, bool) {
	return r.FindIdleLaneWhere(nil)
}

// FindIdleLaneWhere picks among idle lanes accepted by ok, a nil ok accepting all,
// and marks the pick running
func (r *Registry) FindIdleLaneWhere(ok func(lane int) bool) (int, bool) {
	idle := make([]int, 0, len(r.status))
	for i, s := range r.status {
		if s == Idle && (ok == nil || ok(i)) {
			idle = append(idle, i)
		}
	}
	if len(idle) == 0 {
		return -1, false
	}

	p := r.pick(len(idle))
	if p < 0 || p >= len(idle) {
		p = 0
	}
	index := idle[p]
	r.status[index] = Running
	return index, true
}

// FindReusableLane returns the first running lane whose newest member satisfies safe
// The lane stays running
func (r *Registry) FindReusableLane(safe func(lane int, newest string) bool) (int, bool) {
	for i, s := range r.status {
		if s != Running {
			continue
		}
		newest, ok := r.Last(i)
		if ok && safe(i, newest) {
			return i, true
		}
	}
	return -1, false
}

// Add appends id as the newest member of lane and marks it running
func (r *Registry) Add(lane int, id string) {
	if !r.valid(lane) {
		return
	}
	r.members[lane] = append(r.members[lane], id)
	r.status[lane] = Running
}

// Release removes id from lane; the lane turns idle once its membership is empty
// Releasing an unknown or already released id is a no-op
// Returns true when this call turned the lane idle
func (r *Registry) Release(lane int, id string) bool {
	if !r.valid(lane) {
		return false
	}
	list := r.members[lane]
	i := slices.Index(list, id)
	if i < 0 {
		return false
	}
	r.members[lane] = slices.Delete(list, i, i+1)
	return r.settle(lane)
}

// Abandon returns a lane marked by FindIdleLane that never received a member
func (r *Registry) Abandon(lane int) bool {
	if !r.valid(lane) {
		return false
	}
	return r.settle(lane)
}

// Last returns the newest member of lane
func (r *Registry) Last(lane int) (string, bool) {
	if !r.valid(lane) || len(r.members[lane]) == 0 {
		return "", false
	}
	list := r.members[lane]
	return list[len(list)-1], true
}

// Members returns a copy of lane's membership in placement order
func (r *Registry) Members(lane int) []string {
	if !r.valid(lane) {
		return nil
	}
	return slices.Clone(r.members[lane])
}

// Status returns the status of lane
func (r *Registry) Status(lane int) Status {
	if !r.valid(lane) {
		return Idle
	}
	return r.status[lane]
}

// Statuses returns a copy of every lane status
func (r *Registry) Statuses() []Status {
	return slices.Clone(r.status)
}

// Running counts lanes in running state
func (r *Registry) Running() int {
	n := 0
	for _, s := range r.status {
		if s == Running {
			n++
		}
	}
	return n
}

// Reset releases every lane and drops all memberships
func (r *Registry) Reset() {
	for i := range r.status {
		r.status[i] = Idle
		r.members[i] = nil
	}
}

func (r *Registry) settle(lane int) bool {
	if len(r.members[lane]) == 0 && r.status[lane] == Running {
		r.status[lane] = Idle
		return true
	}
	return false
}

func (r *Registry) valid(lane int) bool {
	return lane >= 0 && lane < len(r.status)
}
