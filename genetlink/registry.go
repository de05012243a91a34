package genetlink

import "sync"

// Registry caches resolved families for the lifetime of a Client. Entries are
// never invalidated: a family that's unloaded and registered again may come
// back with a different ID, in which case a new Client is needed.
type Registry struct {
	sync.Mutex
	byName map[string]Family
	byID   map[uint16]Family
}

// NewRegistry returns a registry which only knows the controller's fixed ID.
// That's enough to attribute nlctrl notifications, but looking nlctrl up by
// name still goes to the kernel for its operations and groups.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Family),
		byID:   map[uint16]Family{controllerFamily.ID: controllerFamily},
	}
}

func (r *Registry) Add(f Family) {
	r.Lock()
	r.byName[f.Name] = f
	r.byID[f.ID] = f
	r.Unlock()
}

func (r *Registry) Get(name string) (Family, bool) {
	r.Lock()
	f, ok := r.byName[name]
	r.Unlock()
	return f, ok
}

func (r *Registry) ByID(id uint16) (Family, bool) {
	r.Lock()
	f, ok := r.byID[id]
	r.Unlock()
	return f, ok
}

// Families returns a snapshot of every family resolved so far in no
// particular order.
func (r *Registry) Families() []Family {
	r.Lock()
	defer r.Unlock()

	fs := make([]Family, 0, len(r.byName))
	for _, f := range r.byName {
		fs = append(fs, f)
	}
	return fs
}
