package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type fakeJobRepository struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	history   []Job
	updateErr func(job *Job) error
}

func newFakeJobRepository(jobs ...*Job) *fakeJobRepository {
	repo := &fakeJobRepository{jobs: make(map[string]*Job)}
	for _, job := range jobs {
		copied := *job
		repo.jobs[job.ID] = &copied
	}
	return repo
}

func (r *fakeJobRepository) Get(ctx context.Context, id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("job %s not found", id), nil)
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepository) Update(ctx context.Context, job *Job, expect Precondition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		if err := r.updateErr(job); err != nil {
			return err
		}
	}
	stored, ok := r.jobs[job.ID]
	if !ok {
		return NewNotFoundError(fmt.Sprintf("job %s not found", job.ID), nil)
	}
	if stored.Status != expect.Status ||
		(!expect.UpdatedAt.IsZero() && !stored.UpdatedAt.Equal(expect.UpdatedAt)) {
		return NewInvalidStateError(fmt.Sprintf("job %s is %s, expected %s", job.ID, stored.Status, expect.Status), nil)
	}
	copied := *job
	r.jobs[job.ID] = &copied
	r.history = append(r.history, copied)
	return nil
}

func (r *fakeJobRepository) ListStale(ctx context.Context, before time.Time) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*Job
	for _, job := range r.jobs {
		if job.Status == JobStatusProcessing && job.UpdatedAt.Before(before) {
			copied := *job
			stale = append(stale, &copied)
		}
	}
	return stale, nil
}

func (r *fakeJobRepository) job(id string) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

// statuses lists persisted statuses with heartbeat repeats collapsed
func (r *fakeJobRepository) statuses() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JobStatus
	for _, j := range r.history {
		if len(out) > 0 && out[len(out)-1] == j.Status {
			continue
		}
		out = append(out, j.Status)
	}
	return out
}

// set overwrites the stored record, standing in for another writer
func (r *fakeJobRepository) set(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = &job
}

type fakeCatalog struct {
	ids   []string
	calls int
	err   error
}

func (c *fakeCatalog) ListTables(ctx context.Context, namespace string, limit, offset int) ([]string, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if offset >= len(c.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(c.ids) {
		end = len(c.ids)
	}
	return append([]string(nil), c.ids[offset:end]...), nil
}

type fakeTenantStore struct {
	tenants map[string]*Tenant
}

func (s *fakeTenantStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("tenant %s not found", tenantID), nil)
	}
	return tenant, nil
}

// fakeExecutor stands in for mysqldump and mysql. Dumps write a fixed body
// naming the requested tables; applies capture what was read from stdin.
type fakeExecutor struct {
	mu        sync.Mutex
	commands  []Command
	applied   []string
	exitCodes map[string]int
	errs      map[string]error
	// before runs ahead of each command, outside the lock
	before func(cmd Command)
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		exitCodes: make(map[string]int),
		errs:      make(map[string]error),
	}
}

func (e *fakeExecutor) Execute(ctx context.Context, cmd Command) (*CommandResult, error) {
	if e.before != nil {
		e.before(cmd)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.commands = append(e.commands, cmd)
	if err := e.errs[cmd.Name]; err != nil {
		return &CommandResult{ExitCode: -1}, err
	}
	if code := e.exitCodes[cmd.Name]; code != 0 {
		return &CommandResult{ExitCode: code, Stderr: cmd.Name + " failed"}, nil
	}

	switch cmd.Name {
	case "mysqldump":
		tables := cmd.Args[len(cmd.Args)-countTables(cmd.Args):]
		fmt.Fprintf(cmd.Stdout, "-- dump of %s\n", strings.Join(tables, ","))
	case "mysql":
		data, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return nil, err
		}
		e.applied = append(e.applied, string(data))
	}
	return &CommandResult{ExitCode: 0}, nil
}

func (e *fakeExecutor) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.commands {
		out = append(out, c.Name)
	}
	return out
}

// countTables counts trailing arguments after the schema name
func countTables(args []string) int {
	for i, arg := range args {
		if arg == "-u" && i+2 < len(args) {
			return len(args) - (i + 3)
		}
	}
	return 0
}

// memoryDevice is an in-memory durable device
type memoryDevice struct {
	mu      sync.Mutex
	objects map[string][]byte
	reads   int
	moveErr error
	readErr error
	deleted []string
}

func newMemoryDevice() *memoryDevice {
	return &memoryDevice{objects: make(map[string][]byte)}
}

func (d *memoryDevice) Path(key string) string {
	return objectKey("archives", key)
}

func (d *memoryDevice) Move(ctx context.Context, localPath, locator string) error {
	if d.moveErr != nil {
		return d.moveErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.objects[locator] = data
	d.mu.Unlock()
	return os.Remove(localPath)
}

func (d *memoryDevice) Read(ctx context.Context, locator string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.readErr != nil {
		return nil, d.readErr
	}
	data, ok := d.objects[locator]
	if !ok {
		return nil, NewNotFoundError("object not found", nil)
	}
	return data, nil
}

func (d *memoryDevice) Write(ctx context.Context, locator string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[locator] = append([]byte(nil), data...)
	return nil
}

func (d *memoryDevice) Delete(ctx context.Context, locator string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, locator)
	d.deleted = append(d.deleted, locator)
	return nil
}

func (d *memoryDevice) has(locator string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objects[locator]
	return ok
}

type recordingPipeline struct {
	runs []string
	err  error
}

func (p *recordingPipeline) Run(ctx context.Context, tenant *Tenant, jobID string) error {
	p.runs = append(p.runs, tenant.ID+"/"+jobID)
	return p.err
}

func testTenant() *Tenant {
	return &Tenant{
		ID:         "p1",
		InternalID: "1",
		Namespace:  "_1",
		Database: ConnectionConfig{
			Host:     "db",
			Port:     3306,
			Username: "user",
			Password: "secret",
			Schema:   "appwrite",
		},
	}
}

func pendingJob(id string, jobType JobType) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		TenantID:  "p1",
		Type:      jobType,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
