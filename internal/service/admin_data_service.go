package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
)

const (
	adminDataCachePrefix = "admin-data:"
	studentPlaceholder   = "https://via.placeholder.com/100"
	mediaPlaceholder     = "https://via.placeholder.com/150"
)

type resourceFetcher interface {
	GetJSON(ctx context.Context, path string, dest interface{}) error
	BaseURL() string
}

type sessionReader interface {
	Session() models.Session
}

// AdminDataService loads the lists behind the admin screens in parallel.
type AdminDataService struct {
	fetcher  resourceFetcher
	sessions sessionReader
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
}

// AdminDataServiceParams groups AdminDataService dependencies.
type AdminDataServiceParams struct {
	Fetcher  resourceFetcher
	Sessions sessionReader
	Cache    *CacheService
	Logger   *zap.Logger
}

// NewAdminDataService constructs the loader.
func NewAdminDataService(params AdminDataServiceParams) *AdminDataService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminDataService{
		fetcher:  params.Fetcher,
		sessions: params.Sessions,
		cache:    params.Cache,
		logger:   logger,
		now:      time.Now,
	}
}

// Load fetches every list. A failing list is logged, reported in Failed and left empty;
// only a missing session fails the whole load. force bypasses the cache.
func (s *AdminDataService) Load(ctx context.Context, force bool) (*models.AdminData, error) {
	session := s.sessions.Session()
	if !session.Authenticated() || session.IsLoading {
		return nil, appErrors.ErrSessionRequired
	}
	cacheKey := adminDataCachePrefix + session.User.ID

	if !force {
		var cached models.AdminData
		if s.cache.Get(ctx, cacheKey, &cached) {
			return &cached, nil
		}
	}

	data := &models.AdminData{}
	var (
		mu     sync.Mutex
		failed []string
	)
	fetch := func(name, path string, keys []string, apply func([]json.RawMessage)) func() error {
		return func() error {
			var raw json.RawMessage
			if err := s.fetcher.GetJSON(ctx, path, &raw); err != nil {
				s.logger.Warn("admin data list failed", zap.String("list", name), zap.Error(err))
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
				return nil
			}
			apply(unwrapList(raw, keys...))
			return nil
		}
	}

	base := s.fetcher.BaseURL()
	var g errgroup.Group
	g.Go(fetch("classes", "/api/Classes", []string{"items", "classes", "data"}, func(items []json.RawMessage) {
		data.Classes = decodeClasses(items)
	}))
	g.Go(fetch("teachers", "/api/teachers", []string{"items", "teachers", "data"}, func(items []json.RawMessage) {
		data.Teachers = normalizeTeachers(items, base)
	}))
	g.Go(fetch("students", "/api/Students?pageNumber=1&pageSize=1000", []string{"items", "data"}, func(items []json.RawMessage) {
		data.Students = normalizeStudents(items, base)
	}))
	g.Go(fetch("admins", "/api/Users", []string{"items", "data"}, func(items []json.RawMessage) {
		data.Admins = normalizePeople(items, "Admin", base)
	}))
	g.Go(fetch("parents", "/api/Users?pageNumber=1&pageSize=1000&role=Parent", []string{"items", "data"}, func(items []json.RawMessage) {
		data.Parents = normalizePeople(items, "Parent", base)
	}))
	g.Go(fetch("supervisors", "/api/Users?pageNumber=1&pageSize=1000&role=Supervisor", []string{"items", "data"}, func(items []json.RawMessage) {
		data.Supervisors = normalizePeople(items, "Supervisor", base)
	}))
	g.Go(fetch("events", "/api/Events", []string{"items", "data"}, func(items []json.RawMessage) {
		data.Events = normalizeEvents(items, base)
	}))
	g.Go(fetch("news", "/api/news", []string{"items", "news", "data"}, func(items []json.RawMessage) {
		data.News = normalizeNews(items, base)
	}))
	g.Go(fetch("subjects", "/api/subjects", []string{"items", "subjects", "data"}, func(items []json.RawMessage) {
		data.Subjects = decodeSubjects(items)
	}))
	_ = g.Wait()

	sort.Strings(failed)
	data.Failed = failed
	fillEmpty(data)
	data.Counts = models.AdminDataCounts{
		Classes:     len(data.Classes),
		Teachers:    len(data.Teachers),
		Students:    len(data.Students),
		Admins:      len(data.Admins),
		Parents:     len(data.Parents),
		Supervisors: len(data.Supervisors),
		Events:      len(data.Events),
		News:        len(data.News),
		Subjects:    len(data.Subjects),
	}
	data.LoadedAt = s.now().UTC()

	if len(failed) == 0 {
		s.cache.Set(ctx, cacheKey, data, 0)
	}
	return data, nil
}

// Invalidate drops the cached payload of userID.
func (s *AdminDataService) Invalidate(ctx context.Context, userID string) {
	s.cache.Invalidate(ctx, adminDataCachePrefix+userID)
}

// WatchSessions drops a user's cached payload once that user logs out or another user
// signs in. It returns when ctx is done or updates is closed.
func (s *AdminDataService) WatchSessions(ctx context.Context, updates <-chan models.Session) {
	var current string
	for {
		select {
		case <-ctx.Done():
			return
		case session, ok := <-updates:
			if !ok {
				return
			}
			next := ""
			if session.Authenticated() {
				next = session.User.ID
			}
			if current != "" && current != next {
				s.logger.Debug("dropping cached admin data", zap.String("user_id", current))
				s.Invalidate(context.WithoutCancel(ctx), current)
			}
			current = next
		}
	}
}

// unwrapList accepts a bare array or an object holding the array under one of keys.
func unwrapList(raw json.RawMessage, keys ...string) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil
	}
	for _, key := range keys {
		inner, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &items); err == nil && items != nil {
			return items
		}
	}
	return nil
}

type rawTeacher struct {
	ID          models.FlexibleID `json:"id"`
	TeacherID   models.FlexibleID `json:"teacherId"`
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	NationalID  string            `json:"nationalID"`
	NationalAlt string            `json:"nationalId"`
	Image       string            `json:"image"`
	ImageURL    string            `json:"imageUrl"`
	Subjects    json.RawMessage   `json:"subjects"`
}

type rawStudent struct {
	ID         models.FlexibleID `json:"id"`
	Name       string            `json:"name"`
	LevelName  string            `json:"levelName"`
	ClassName  string            `json:"className"`
	ParentName string            `json:"parentName"`
	ParentID   models.FlexibleID `json:"parentId"`
	Image      string            `json:"image"`
}

type rawUser struct {
	ID         models.FlexibleID `json:"id"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	Email      string            `json:"email"`
	NationalID string            `json:"nationalID"`
	Image      string            `json:"image"`
	IsDisabled bool              `json:"isDisabled"`
	Roles      []string          `json:"roles"`
}

type rawEvent struct {
	ID          models.FlexibleID `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image"`
}

type rawNews struct {
	ID            models.FlexibleID `json:"id"`
	Title         string            `json:"title"`
	TitleUpper    string            `json:"Title"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Category      string            `json:"category"`
	EventCategory string            `json:"eventCategory"`
	Image         string            `json:"image"`
}

func decodeClasses(items []json.RawMessage) []models.Class {
	out := make([]models.Class, 0, len(items))
	for _, item := range items {
		var c models.Class
		if json.Unmarshal(item, &c) == nil {
			out = append(out, c)
		}
	}
	return out
}

func decodeSubjects(items []json.RawMessage) []models.Subject {
	out := make([]models.Subject, 0, len(items))
	for _, item := range items {
		var subject models.Subject
		if json.Unmarshal(item, &subject) == nil {
			out = append(out, subject)
		}
	}
	return out
}

func normalizeTeachers(items []json.RawMessage, base string) []models.Teacher {
	out := make([]models.Teacher, 0, len(items))
	for _, item := range items {
		var raw rawTeacher
		if json.Unmarshal(item, &raw) != nil {
			continue
		}
		first, last := raw.FirstName, raw.LastName
		if first == "" || last == "" {
			parts := strings.Fields(raw.Name)
			if first == "" && len(parts) > 0 {
				first = parts[0]
			}
			if last == "" && len(parts) > 1 {
				last = strings.Join(parts[1:], " ")
			}
		}
		subjects := raw.Subjects
		if len(subjects) == 0 || string(subjects) == "null" {
			subjects = json.RawMessage("[]")
		}
		out = append(out, models.Teacher{
			ID:         firstNonEmpty(raw.ID.String(), raw.TeacherID.String()),
			FirstName:  first,
			LastName:   last,
			Email:      raw.Email,
			NationalID: firstNonEmpty(raw.NationalID, raw.NationalAlt),
			Image:      resolveImage(base, firstNonEmpty(raw.Image, raw.ImageURL), ""),
			Subjects:   subjects,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return lessFold(out[i].FirstName+" "+out[i].LastName, out[j].FirstName+" "+out[j].LastName)
	})
	return out
}

func normalizeStudents(items []json.RawMessage, base string) []models.Student {
	out := make([]models.Student, 0, len(items))
	for _, item := range items {
		var raw rawStudent
		if json.Unmarshal(item, &raw) != nil {
			continue
		}
		out = append(out, models.Student{
			ID:         raw.ID.String(),
			Name:       raw.Name,
			LevelName:  raw.LevelName,
			ClassName:  raw.ClassName,
			ParentName: raw.ParentName,
			ParentID:   raw.ParentID.String(),
			Image:      resolveImage(base, raw.Image, studentPlaceholder),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return lessFold(out[i].Name, out[j].Name) })
	return out
}

func normalizePeople(items []json.RawMessage, role, base string) []models.Person {
	out := make([]models.Person, 0, len(items))
	for _, item := range items {
		var raw rawUser
		if json.Unmarshal(item, &raw) != nil || raw.IsDisabled || !hasRole(raw.Roles, role) {
			continue
		}
		out = append(out, models.Person{
			ID:         raw.ID.String(),
			FirstName:  raw.FirstName,
			LastName:   raw.LastName,
			Name:       strings.TrimSpace(raw.FirstName + " " + raw.LastName),
			Email:      raw.Email,
			NationalID: raw.NationalID,
			Image:      resolveImage(base, raw.Image, ""),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return lessFold(out[i].Name, out[j].Name) })
	return out
}

func normalizeEvents(items []json.RawMessage, base string) []models.Event {
	out := make([]models.Event, 0, len(items))
	for _, item := range items {
		var raw rawEvent
		if json.Unmarshal(item, &raw) != nil {
			continue
		}
		out = append(out, models.Event{
			ID:          raw.ID.String(),
			Title:       raw.Name,
			Description: raw.Description,
			Image:       resolveImage(base, raw.Image, mediaPlaceholder),
		})
	}
	return out
}

func normalizeNews(items []json.RawMessage, base string) []models.NewsItem {
	out := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		var raw rawNews
		if json.Unmarshal(item, &raw) != nil {
			continue
		}
		out = append(out, models.NewsItem{
			ID:          raw.ID.String(),
			Title:       firstNonEmpty(raw.Title, raw.TitleUpper, raw.Name),
			Description: raw.Description,
			Category:    firstNonEmpty(raw.Category, raw.EventCategory),
			Image:       resolveImage(base, raw.Image, mediaPlaceholder),
		})
	}
	return out
}

// resolveImage prefixes relative paths with the API base; empty paths use fallback.
func resolveImage(base, image, fallback string) string {
	switch {
	case image == "":
		return fallback
	case strings.HasPrefix(image, "http://"), strings.HasPrefix(image, "https://"):
		return image
	default:
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(image, "/")
	}
}

func hasRole(roles []string, want string) bool {
	for _, role := range roles {
		if strings.EqualFold(role, want) {
			return true
		}
	}
	return false
}

func lessFold(a, b string) bool {
	return strings.ToLower(strings.TrimSpace(a)) < strings.ToLower(strings.TrimSpace(b))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func fillEmpty(data *models.AdminData) {
	if data.Classes == nil {
		data.Classes = []models.Class{}
	}
	if data.Teachers == nil {
		data.Teachers = []models.Teacher{}
	}
	if data.Students == nil {
		data.Students = []models.Student{}
	}
	if data.Admins == nil {
		data.Admins = []models.Person{}
	}
	if data.Parents == nil {
		data.Parents = []models.Person{}
	}
	if data.Supervisors == nil {
		data.Supervisors = []models.Person{}
	}
	if data.Events == nil {
		data.Events = []models.Event{}
	}
	if data.News == nil {
		data.News = []models.NewsItem{}
	}
	if data.Subjects == nil {
		data.Subjects = []models.Subject{}
	}
}
