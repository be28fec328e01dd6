package engine

import (
	"errors"
	"strings"
)

const (
	maxCategoryLength = 50
	maxCommandLength  = 200
)

// pendingJob is one not-yet-dispatched inbound command parked on a
// category's queue.
type pendingJob struct {
	pub   PubKey
	sn    bool
	cmd   string
	parts [][]byte
	cb    Callback
}

// Category is immutable after Start except for activeThreads, which
// only the proxy goroutine mutates.
type Category struct {
	Name     string
	Access   Access
	Reserved int
	MaxQueue int // 0 = run only when a worker is immediately free, <0 = unbounded

	commands map[string]Callback

	activeThreads int
	pending       []pendingJob
}

func newCategory(name string, access Access, reserved, maxQueue int) *Category {
	return &Category{
		Name:     name,
		Access:   access,
		Reserved: reserved,
		MaxQueue: maxQueue,
		commands: make(map[string]Callback),
	}
}

// enqueue appends a job, applying the drop-oldest-on-overflow policy
// (or drop-new when MaxQueue == 0); unbounded when MaxQueue < 0.
// Returns true if the job was kept.
func (c *Category) enqueue(job pendingJob) bool {
	if c.MaxQueue == 0 {
		return false
	}
	if c.MaxQueue > 0 && len(c.pending) >= c.MaxQueue {
		if len(c.pending) > 0 {
			c.pending = c.pending[1:]
		}
	}
	c.pending = append(c.pending, job)
	return true
}

func (c *Category) dequeue() (pendingJob, bool) {
	if len(c.pending) == 0 {
		return pendingJob{}, false
	}
	job := c.pending[0]
	c.pending = c.pending[1:]
	return job, true
}

// Registry holds the Category Registry (F) and the Command Alias
// table (G); both are immutable once the owning Proxy has started.
type Registry struct {
	categories map[string]*Category
	aliases    map[string]string
	started    bool
}

func NewRegistry() *Registry {
	return &Registry{
		categories: make(map[string]*Category),
		aliases:    make(map[string]string),
	}
}

var (
	ErrAlreadyStarted  = errors.New("engine: registry is immutable after start")
	ErrBadCategoryName = errors.New("engine: category name must be 1..50 chars and contain no '.'")
	ErrBadCommandName  = errors.New("engine: command name must be <= 200 chars")
	ErrDuplicateCategory = errors.New("engine: category already registered")
	ErrUnknownCategory = errors.New("engine: unknown category")
)

func (r *Registry) AddCategory(name string, access Access, reserved, maxQueue int) error {
	if r.started {
		return ErrAlreadyStarted
	}
	if len(name) == 0 || len(name) > maxCategoryLength || strings.Contains(name, ".") {
		return ErrBadCategoryName
	}
	if _, exists := r.categories[name]; exists {
		return ErrDuplicateCategory
	}
	r.categories[name] = newCategory(name, access, reserved, maxQueue)
	return nil
}

func (r *Registry) AddCommand(category, name string, cb Callback) error {
	if r.started {
		return ErrAlreadyStarted
	}
	if len(name) == 0 || len(name) > maxCommandLength {
		return ErrBadCommandName
	}
	c, ok := r.categories[category]
	if !ok {
		return ErrUnknownCategory
	}
	c.commands[name] = cb
	return nil
}

// AddCommandAlias registers a flat from->to rename applied before
// category lookup; access and dispatch both follow the resolved `to`
// name. The specification flags as an open ambiguity that `from` may
// name something outside any declared category — this implementation
// treats that as permitted at registration time (aliases are just a
// string rewrite) and lets resolution fail normally if `to` turns out
// not to exist by the time a command arrives.
func (r *Registry) AddCommandAlias(from, to string) error {
	if r.started {
		return ErrAlreadyStarted
	}
	r.aliases[from] = to
	return nil
}

func (r *Registry) lock() {
	r.started = true
}

// Resolve applies the alias table exactly once, then splits the
// result into category/command and looks up the callback.
func (r *Registry) Resolve(full string) (cat *Category, command string, cb Callback, ok bool) {
	if resolved, aliased := r.aliases[full]; aliased {
		full = resolved
	}
	dot := strings.LastIndexByte(full, '.')
	if dot <= 0 || dot == len(full)-1 {
		return nil, "", nil, false
	}
	catName, cmdName := full[:dot], full[dot+1:]
	c, ok := r.categories[catName]
	if !ok {
		return nil, "", nil, false
	}
	cb, ok = c.commands[cmdName]
	if !ok {
		return nil, "", nil, false
	}
	return c, cmdName, cb, true
}

func (r *Registry) category(name string) (*Category, bool) {
	c, ok := r.categories[name]
	return c, ok
}

func (r *Registry) each(fn func(*Category)) {
	for _, c := range r.categories {
		fn(c)
	}
}
