package memory

import (
	"context"
	"sync"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

// Catalog serves courses from memory.
type Catalog struct {
	mu      sync.RWMutex
	courses map[string]domain.Course
}

func NewCatalog(courses ...domain.Course) *Catalog {
	c := &Catalog{courses: make(map[string]domain.Course)}
	for _, course := range courses {
		c.courses[course.ID] = course
	}
	return c
}

// Put adds or replaces a course.
func (c *Catalog) Put(course domain.Course) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[course.ID] = course
}

func (c *Catalog) GetCourse(_ context.Context, id string) (*domain.Course, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &course, nil
}

// UserDirectory serves accounts from memory.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserDirectory(users ...domain.User) *UserDirectory {
	d := &UserDirectory{users: make(map[string]domain.User)}
	for _, user := range users {
		d.users[user.ID] = user
	}
	return d
}

// Put adds or replaces a user.
func (d *UserDirectory) Put(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *UserDirectory) GetUser(_ context.Context, id string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (d *UserDirectory) CountUsers(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users), nil
}
