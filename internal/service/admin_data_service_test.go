package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: map[string]string{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeFetcher) GetJSON(_ context.Context, path string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if err, ok := f.failures[path]; ok {
		return err
	}
	body, ok := f.responses[path]
	if !ok {
		body = `[]`
	}
	return json.Unmarshal([]byte(body), dest)
}

func (f *fakeFetcher) BaseURL() string { return "https://api.school.test" }

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type staticSessions struct {
	session models.Session
}

func (s staticSessions) Session() models.Session { return s.session }

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = payload
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func adminSession() staticSessions {
	return staticSessions{session: models.Session{
		Token: "token",
		User:  &models.UserProfile{ID: "42", Roles: []string{"Admin"}},
	}}
}

func newTestAdminDataService(fetcher *fakeFetcher, sessions sessionReader, cache *CacheService) *AdminDataService {
	svc := NewAdminDataService(AdminDataServiceParams{Fetcher: fetcher, Sessions: sessions, Cache: cache})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestAdminDataLoadNormalizesLists(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses["/api/Classes"] = `{"items":[{"id":1,"name":"7A","levelName":"Grade 7"}]}`
	fetcher.responses["/api/teachers"] = `{"teachers":[
		{"teacherId":9,"name":"Zed Alpha","nationalId":"N-9","imageUrl":"/img/zed.png"},
		{"id":"t-1","firstName":"amy","lastName":"Brown","email":"amy@school.test","subjects":[{"id":1}]}
	]}`
	fetcher.responses["/api/Students?pageNumber=1&pageSize=1000"] = `{"data":[
		{"id":12,"name":"Yusuf","image":"uploads/y.png","parentId":5},
		{"id":11,"name":"ani"}
	]}`
	fetcher.responses["/api/Users"] = `[
		{"id":"a1","firstName":"Budi","lastName":"S","roles":["Admin"]},
		{"id":"a2","firstName":"Ani","lastName":"K","roles":["admin"],"image":"https://cdn.test/a.png"},
		{"id":"a3","firstName":"Off","lastName":"Line","roles":["Admin"],"isDisabled":true},
		{"id":"t1","firstName":"Teach","lastName":"Er","roles":["Teacher"]}
	]`
	fetcher.responses["/api/Users?pageNumber=1&pageSize=1000&role=Parent"] = `{"items":[
		{"id":"p1","firstName":"Pia","lastName":"P","roles":["Parent"],"image":"/p.png"}
	]}`
	fetcher.responses["/api/Events"] = `[{"id":3,"name":"Sports Day","description":"Annual"}]`
	fetcher.responses["/api/news"] = `{"news":[
		{"id":1,"Title":"Exam","eventCategory":"Academic","image":"/n.png"},
		{"id":2,"name":"Holiday","category":"General","image":"https://cdn.test/h.png"}
	]}`
	fetcher.responses["/api/subjects"] = `{"subjects":[{"id":"s1","name":"Math"}]}`

	svc := newTestAdminDataService(fetcher, adminSession(), nil)

	data, err := svc.Load(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, data.Classes, 1)
	assert.Equal(t, models.FlexibleID("1"), data.Classes[0].ID)

	require.Len(t, data.Teachers, 2)
	assert.Equal(t, "t-1", data.Teachers[0].ID)
	assert.JSONEq(t, `[{"id":1}]`, string(data.Teachers[0].Subjects))
	assert.Equal(t, "9", data.Teachers[1].ID)
	assert.Equal(t, "Zed", data.Teachers[1].FirstName)
	assert.Equal(t, "Alpha", data.Teachers[1].LastName)
	assert.Equal(t, "N-9", data.Teachers[1].NationalID)
	assert.Equal(t, "https://api.school.test/img/zed.png", data.Teachers[1].Image)
	assert.JSONEq(t, `[]`, string(data.Teachers[1].Subjects))

	require.Len(t, data.Students, 2)
	assert.Equal(t, "11", data.Students[0].ID)
	assert.Equal(t, studentPlaceholder, data.Students[0].Image)
	assert.Equal(t, "https://api.school.test/uploads/y.png", data.Students[1].Image)
	assert.Equal(t, "5", data.Students[1].ParentID)

	require.Len(t, data.Admins, 2)
	assert.Equal(t, "Ani K", data.Admins[0].Name)
	assert.Equal(t, "https://cdn.test/a.png", data.Admins[0].Image)
	assert.Equal(t, "Budi S", data.Admins[1].Name)

	require.Len(t, data.Parents, 1)
	assert.Equal(t, "https://api.school.test/p.png", data.Parents[0].Image)
	assert.Empty(t, data.Supervisors)

	require.Len(t, data.Events, 1)
	assert.Equal(t, "Sports Day", data.Events[0].Title)
	assert.Equal(t, mediaPlaceholder, data.Events[0].Image)

	require.Len(t, data.News, 2)
	assert.Equal(t, "Exam", data.News[0].Title)
	assert.Equal(t, "Academic", data.News[0].Category)
	assert.Equal(t, "https://api.school.test/n.png", data.News[0].Image)
	assert.Equal(t, "Holiday", data.News[1].Title)
	assert.Equal(t, "https://cdn.test/h.png", data.News[1].Image)

	require.Len(t, data.Subjects, 1)
	assert.Equal(t, models.AdminDataCounts{
		Classes: 1, Teachers: 2, Students: 2, Admins: 2, Parents: 1, Events: 1, News: 2, Subjects: 1,
	}, data.Counts)
	assert.Empty(t, data.Failed)
	assert.Equal(t, fixedNow.UTC(), data.LoadedAt)
}

func TestAdminDataLoadIsolatesFailures(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failures["/api/teachers"] = errors.New("boom")
	fetcher.failures["/api/news"] = appErrors.Upstream(500, []string{"down"})
	fetcher.responses["/api/Classes"] = `[{"id":1,"name":"7A"}]`

	svc := newTestAdminDataService(fetcher, adminSession(), nil)

	data, err := svc.Load(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"news", "teachers"}, data.Failed)
	assert.NotNil(t, data.Teachers)
	assert.Empty(t, data.Teachers)
	assert.Empty(t, data.News)
	assert.Len(t, data.Classes, 1)
	assert.Equal(t, 9, fetcher.totalCalls())
}

func TestAdminDataLoadRequiresSession(t *testing.T) {
	fetcher := newFakeFetcher()

	for name, sessions := range map[string]staticSessions{
		"anonymous": {session: models.AnonymousSession()},
		"loading":   {session: models.Session{Token: "t", User: &models.UserProfile{ID: "1"}, IsLoading: true}},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newTestAdminDataService(fetcher, sessions, nil)
			_, err := svc.Load(context.Background(), false)
			assert.ErrorIs(t, err, appErrors.ErrSessionRequired)
		})
	}
	assert.Zero(t, fetcher.totalCalls())
}

func TestAdminDataLoadUsesCache(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.responses["/api/Classes"] = `[{"id":1,"name":"7A"}]`
	repo := &memoryCacheRepo{entries: map[string][]byte{}}
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	svc := newTestAdminDataService(fetcher, adminSession(), cache)
	ctx := context.Background()

	first, err := svc.Load(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, repo.entries, "admin-data:42")

	second, err := svc.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 9, fetcher.totalCalls())
	assert.Equal(t, first.Counts, second.Counts)

	_, err = svc.Load(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 18, fetcher.totalCalls())

	svc.Invalidate(ctx, "42")
	assert.Empty(t, repo.entries)
}

func TestAdminDataWatchSessionsDropsPreviousUser(t *testing.T) {
	repo := &memoryCacheRepo{entries: map[string][]byte{
		"admin-data:42": []byte(`{}`),
		"admin-data:7":  []byte(`{}`),
		"admin-data:99": []byte(`{}`),
	}}
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := newTestAdminDataService(newFakeFetcher(), adminSession(), cache)

	updates := make(chan models.Session)
	done := make(chan struct{})
	go func() {
		svc.WatchSessions(context.Background(), updates)
		close(done)
	}()

	signedIn := func(id string) models.Session {
		return models.Session{Token: "token-" + id, User: &models.UserProfile{ID: id}}
	}
	updates <- models.Session{IsLoading: true}
	updates <- signedIn("42")
	updates <- signedIn("42")
	updates <- signedIn("7")
	updates <- models.AnonymousSession()
	close(updates)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.NotContains(t, repo.entries, "admin-data:42")
	assert.NotContains(t, repo.entries, "admin-data:7")
	assert.Contains(t, repo.entries, "admin-data:99")
}

func TestAdminDataWatchSessionsStopsWithContext(t *testing.T) {
	svc := newTestAdminDataService(newFakeFetcher(), adminSession(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.WatchSessions(ctx, make(chan models.Session))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher ignored cancellation")
	}
}

func TestAdminDataSkipsCacheOnPartialFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failures["/api/Events"] = errors.New("timeout")
	repo := &memoryCacheRepo{entries: map[string][]byte{}}
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := newTestAdminDataService(fetcher, adminSession(), cache)

	data, err := svc.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, data.Failed)
	assert.Empty(t, repo.entries)
}

func TestUnwrapList(t *testing.T) {
	assert.Len(t, unwrapList(json.RawMessage(`[1,2]`), "items"), 2)
	assert.Len(t, unwrapList(json.RawMessage(`{"data":[1]}`), "items", "data"), 1)
	assert.Len(t, unwrapList(json.RawMessage(`{"items":null,"data":[1,2,3]}`), "items", "data"), 3)
	assert.Nil(t, unwrapList(json.RawMessage(`{"other":[1]}`), "items"))
	assert.Nil(t, unwrapList(json.RawMessage(`"nope"`), "items"))
}
