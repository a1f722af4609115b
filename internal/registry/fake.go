package registry

import (
	"context"
	"sort"
	"sync"
)

// FakeRepository is an in-memory Repository used by service-level tests,
// in the spirit of this codebase's per-package mock.go fakes.
type FakeRepository struct {
	mu     sync.Mutex
	byID   map[string]*Server
	byName map[string]string // name -> id
}

// NewFakeRepository returns an empty in-memory repository.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		byID:   make(map[string]*Server),
		byName: make(map[string]string),
	}
}

func clone(s *Server) *Server {
	cp := *s
	return &cp
}

func (f *FakeRepository) Insert(_ context.Context, s *Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byName[s.Config.Name]; exists {
		return ErrNameConflict
	}
	f.byID[s.ID] = clone(s)
	f.byName[s.Config.Name] = s.ID
	return nil
}

func (f *FakeRepository) Get(_ context.Context, id string) (*Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (f *FakeRepository) GetByName(_ context.Context, name string) (*Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(f.byID[id]), nil
}

func (f *FakeRepository) List(_ context.Context, filter ListFilter) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*Server
	for _, s := range f.byID {
		if filter.CreatedBy != "" && s.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && s.Status.Status != filter.Status {
			continue
		}
		matched = append(matched, clone(s))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &Page{Servers: matched[start:end], Total: total, Page: page, PageSize: pageSize}, nil
}

func (f *FakeRepository) UpdateConfig(_ context.Context, id string, cfg ServerConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.Config = cfg
	return nil
}

func (f *FakeRepository) UpdateStatus(_ context.Context, id string, st ServerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = st
	return nil
}

func (f *FakeRepository) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	delete(f.byID, id)
	delete(f.byName, s.Config.Name)
	return true, nil
}

func (f *FakeRepository) ServersByStatus(_ context.Context, st string) ([]*Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Server
	for _, s := range f.byID {
		if string(s.Status.Status) == st {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (f *FakeRepository) UsedPorts(_ context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ports []int
	for _, s := range f.byID {
		if s.Config.Port != 0 {
			ports = append(ports, s.Config.Port)
		}
	}
	return ports, nil
}
