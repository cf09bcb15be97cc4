package service_test

import (
	"context"
	"fmt"
	"sync"

	"tasklink.app/bridge/internal/github"
	"tasklink.app/bridge/internal/model"
	"tasklink.app/bridge/internal/store"
	"tasklink.app/bridge/internal/tracker"
)

// Mock upstream client

type mockGitHub struct {
	fetchPullRequestFn         func(ctx context.Context, repo string, number int) (*model.PullRequest, error)
	fetchReviewFn              func(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error)
	resolveRootForCommitFn     func(ctx context.Context, repo, sha string) (int, bool, error)
	resolveReviewByNumericIDFn func(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error)

	mergedCalls []string
}

var _ github.Client = (*mockGitHub)(nil)

func (m *mockGitHub) FetchPullRequest(ctx context.Context, repo string, number int) (*model.PullRequest, error) {
	if m.fetchPullRequestFn != nil {
		return m.fetchPullRequestFn(ctx, repo, number)
	}
	return nil, fmt.Errorf("unexpected FetchPullRequest(%s, %d)", repo, number)
}

func (m *mockGitHub) FetchReview(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error) {
	if m.fetchReviewFn != nil {
		return m.fetchReviewFn(ctx, repo, number, reviewID)
	}
	return nil, false, nil
}

func (m *mockGitHub) ResolveRootForCommit(ctx context.Context, repo, sha string) (int, bool, error) {
	if m.resolveRootForCommitFn != nil {
		return m.resolveRootForCommitFn(ctx, repo, sha)
	}
	return 0, false, nil
}

func (m *mockGitHub) ResolveReviewByNumericID(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error) {
	if m.resolveReviewByNumericIDFn != nil {
		return m.resolveReviewByNumericIDFn(ctx, repo, number, reviewID)
	}
	return nil, false, nil
}

func (m *mockGitHub) MergePullRequest(ctx context.Context, repo string, number int, message string) error {
	m.mergedCalls = append(m.mergedCalls, fmt.Sprintf("%s#%d", repo, number))
	return nil
}

// Mock downstream client. Records all mutations so specs can assert on the
// exact side effect set.

type mockTracker struct {
	mu sync.Mutex

	nextID int

	createTaskErr error
	addCommentErr error

	tasks       map[string]tracker.TaskFields
	createCalls int
	updateCalls int

	comments       map[string]string
	deletedComms   []string
	followers      map[string][]string
	attachments    map[string]string // attachment id -> url
	deletedAttachs []string
}

var _ tracker.Client = (*mockTracker)(nil)

func newMockTracker() *mockTracker {
	return &mockTracker{
		tasks:       make(map[string]tracker.TaskFields),
		comments:    make(map[string]string),
		followers:   make(map[string][]string),
		attachments: make(map[string]string),
	}
}

func (m *mockTracker) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockTracker) CreateTask(ctx context.Context, projectID string, fields tracker.TaskFields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTaskErr != nil {
		return "", m.createTaskErr
	}
	id := m.newID("task")
	m.tasks[id] = fields
	m.createCalls++
	return id, nil
}

func (m *mockTracker) UpdateTask(ctx context.Context, taskID string, fields tracker.TaskFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return fmt.Errorf("update of unknown task %s", taskID)
	}
	m.tasks[taskID] = fields
	m.updateCalls++
	return nil
}

func (m *mockTracker) AddComment(ctx context.Context, taskID, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addCommentErr != nil {
		return "", m.addCommentErr
	}
	id := m.newID("comment")
	m.comments[id] = body
	return id, nil
}

func (m *mockTracker) UpdateComment(ctx context.Context, commentID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[commentID]; !ok {
		return fmt.Errorf("update of unknown comment %s", commentID)
	}
	m.comments[commentID] = body
	return nil
}

func (m *mockTracker) DeleteComment(ctx context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comments, commentID)
	m.deletedComms = append(m.deletedComms, commentID)
	return nil
}

func (m *mockTracker) AddFollowers(ctx context.Context, taskID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followers[taskID] = append(m.followers[taskID], userIDs...)
	return nil
}

func (m *mockTracker) UploadAttachment(ctx context.Context, taskID, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID("att")
	m.attachments[id] = url
	return id, nil
}

func (m *mockTracker) DeleteAttachment(ctx context.Context, attachmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attachments, attachmentID)
	m.deletedAttachs = append(m.deletedAttachs, attachmentID)
	return nil
}

// In-memory store provider

type fakeStores struct {
	mappings *fakeMappingStore
	users    *fakeUserMappingStore
	delivery *fakeDeliveryStore
}

var _ store.Provider = (*fakeStores)(nil)

func newFakeStores(userMap map[string]string) *fakeStores {
	return &fakeStores{
		mappings: &fakeMappingStore{
			mappings:    make(map[string]string),
			attachments: make(map[string]map[string]string),
		},
		users:    &fakeUserMappingStore{users: userMap},
		delivery: &fakeDeliveryStore{},
	}
}

func (f *fakeStores) Mappings() store.MappingStore         { return f.mappings }
func (f *fakeStores) UserMappings() store.UserMappingStore { return f.users }
func (f *fakeStores) Deliveries() store.DeliveryStore      { return f.delivery }

type fakeMappingStore struct {
	mu          sync.Mutex
	mappings    map[string]string
	attachments map[string]map[string]string
}

func (f *fakeMappingStore) Lookup(ctx context.Context, upstreamID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.mappings[upstreamID]
	if !ok {
		return "", store.ErrNotFound
	}
	return id, nil
}

func (f *fakeMappingStore) Insert(ctx context.Context, upstreamID, downstreamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.mappings[upstreamID]; ok && existing != downstreamID {
		return fmt.Errorf("mapping %s already bound to %s", upstreamID, existing)
	}
	f.mappings[upstreamID] = downstreamID
	return nil
}

func (f *fakeMappingStore) BulkInsert(ctx context.Context, pairs []model.MappingPair) error {
	for _, p := range pairs {
		if err := f.Insert(ctx, p.UpstreamID, p.DownstreamID); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMappingStore) Delete(ctx context.Context, upstreamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mappings, upstreamID)
	delete(f.attachments, upstreamID)
	return nil
}

func (f *fakeMappingStore) GetAttachments(ctx context.Context, upstreamID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.attachments[upstreamID]))
	for k, v := range f.attachments[upstreamID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeMappingStore) SetAttachments(ctx context.Context, upstreamID string, assets map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[upstreamID] = assets
	return nil
}

type fakeUserMappingStore struct {
	users map[string]string
}

func (f *fakeUserMappingStore) GetAll(ctx context.Context) (map[string]string, error) {
	return f.users, nil
}

func (f *fakeUserMappingStore) Set(ctx context.Context, upstreamLogin, downstreamUserID string) error {
	f.users[upstreamLogin] = downstreamUserID
	return nil
}

type fakeDeliveryStore struct {
	mu        sync.Mutex
	recorded  []model.Delivery
	processed []int64
	failed    []int64
}

func (f *fakeDeliveryStore) Record(ctx context.Context, d *model.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, *d)
	return nil
}

func (f *fakeDeliveryStore) MarkProcessed(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeDeliveryStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeDeliveryStore) GetByID(ctx context.Context, id int64) (*model.Delivery, error) {
	return nil, store.ErrNotFound
}
