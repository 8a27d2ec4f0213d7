package lessons

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"maestro/backend/internal/domain"
	"maestro/backend/internal/store"
)

type fakeLessonRepo struct {
	createFn        func(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error)
	createSeriesFn  func(ctx context.Context, seed domain.Lesson, count int) (store.SeriesResult, error)
	getFn           func(ctx context.Context, id uuid.UUID) (domain.Lesson, error)
	updateFn        func(ctx context.Context, id uuid.UUID, patch store.LessonPatch, cascade bool) (domain.Lesson, store.SeriesResult, error)
	cancelFn        func(ctx context.Context, id uuid.UUID, cascade bool) ([]domain.Lesson, error)
	markCompletedFn func(ctx context.Context, id uuid.UUID) (domain.Lesson, error)
	listScheduledFn func(ctx context.Context, teacherID uuid.UUID, date time.Time) ([]domain.Lesson, error)
	listFn          func(ctx context.Context, filter store.LessonFilter) ([]domain.Lesson, error)
	nextFn          func(ctx context.Context, studentID uuid.UUID, from time.Time) (domain.Lesson, error)
	historyFn       func(ctx context.Context, studentID uuid.UUID, limit int) ([]domain.Lesson, error)
	upcomingFn      func(ctx context.Context, at time.Time, window time.Duration) ([]domain.Lesson, error)
}

func (f *fakeLessonRepo) Create(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
	return f.createFn(ctx, lesson)
}

func (f *fakeLessonRepo) CreateSeries(ctx context.Context, seed domain.Lesson, count int) (store.SeriesResult, error) {
	return f.createSeriesFn(ctx, seed, count)
}

func (f *fakeLessonRepo) Get(ctx context.Context, id uuid.UUID) (domain.Lesson, error) {
	return f.getFn(ctx, id)
}

func (f *fakeLessonRepo) Update(ctx context.Context, id uuid.UUID, patch store.LessonPatch, cascade bool) (domain.Lesson, store.SeriesResult, error) {
	return f.updateFn(ctx, id, patch, cascade)
}

func (f *fakeLessonRepo) Cancel(ctx context.Context, id uuid.UUID, cascade bool) ([]domain.Lesson, error) {
	return f.cancelFn(ctx, id, cascade)
}

func (f *fakeLessonRepo) MarkCompleted(ctx context.Context, id uuid.UUID) (domain.Lesson, error) {
	return f.markCompletedFn(ctx, id)
}

func (f *fakeLessonRepo) ListScheduled(ctx context.Context, teacherID uuid.UUID, date time.Time) ([]domain.Lesson, error) {
	return f.listScheduledFn(ctx, teacherID, date)
}

func (f *fakeLessonRepo) List(ctx context.Context, filter store.LessonFilter) ([]domain.Lesson, error) {
	return f.listFn(ctx, filter)
}

func (f *fakeLessonRepo) Next(ctx context.Context, studentID uuid.UUID, from time.Time) (domain.Lesson, error) {
	return f.nextFn(ctx, studentID, from)
}

func (f *fakeLessonRepo) History(ctx context.Context, studentID uuid.UUID, limit int) ([]domain.Lesson, error) {
	return f.historyFn(ctx, studentID, limit)
}

func (f *fakeLessonRepo) UpcomingWithin(ctx context.Context, at time.Time, window time.Duration) ([]domain.Lesson, error) {
	return f.upcomingFn(ctx, at, window)
}

type fakeDirectory struct {
	isEnrolledFn       func(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
	resolveApproverFn  func(ctx context.Context, kind domain.RequestKind, targetID uuid.UUID) (uuid.UUID, error)
	enrolledStudentsFn func(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error)
	notifyPreferenceFn func(ctx context.Context, userID uuid.UUID) (store.NotifyPreference, error)
}

func (f *fakeDirectory) IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	if f.isEnrolledFn == nil {
		return true, nil
	}
	return f.isEnrolledFn(ctx, studentID, courseID)
}

func (f *fakeDirectory) ResolveApprover(ctx context.Context, kind domain.RequestKind, targetID uuid.UUID) (uuid.UUID, error) {
	return f.resolveApproverFn(ctx, kind, targetID)
}

func (f *fakeDirectory) EnrolledStudents(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	if f.enrolledStudentsFn == nil {
		return nil, nil
	}
	return f.enrolledStudentsFn(ctx, courseID)
}

func (f *fakeDirectory) NotifyPreference(ctx context.Context, userID uuid.UUID) (store.NotifyPreference, error) {
	if f.notifyPreferenceFn == nil {
		return store.NotifyPreference{}, nil
	}
	return f.notifyPreferenceFn(ctx, userID)
}

type recordedEvent struct {
	event   string
	payload map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Emit(ctx context.Context, event string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{event: event, payload: payload})
}

func (n *recordingNotifier) byName(event string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func tod(t *testing.T, s string) domain.TimeOfDay {
	t.Helper()
	v, err := domain.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q) error: %v", s, err)
	}
	return v
}

func validCreateInput(t *testing.T) CreateInput {
	t.Helper()
	return CreateInput{
		CourseID:  uuid.MustParse("00000000-0000-0000-0000-00000000000a"),
		StudentID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"),
		TeacherID: uuid.MustParse("00000000-0000-0000-0000-00000000000c"),
		Date:      time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartTime: tod(t, "10:00"),
		EndTime:   tod(t, "11:00"),
		Classroom: "A1",
	}
}

func TestSchedulerCreateValidation(t *testing.T) {
	repo := &fakeLessonRepo{
		createFn: func(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
			t.Fatal("repo must not be reached on invalid input")
			return domain.Lesson{}, nil
		},
	}
	s := NewScheduler(repo, &fakeDirectory{}, nil, nil, 0)

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{name: "missing course", mutate: func(in *CreateInput) { in.CourseID = uuid.Nil }},
		{name: "missing student", mutate: func(in *CreateInput) { in.StudentID = uuid.Nil }},
		{name: "missing teacher", mutate: func(in *CreateInput) { in.TeacherID = uuid.Nil }},
		{name: "missing date", mutate: func(in *CreateInput) { in.Date = time.Time{} }},
		{name: "end before start", mutate: func(in *CreateInput) {
			in.StartTime = tod(t, "11:00")
			in.EndTime = tod(t, "10:00")
		}},
		{name: "end equals start", mutate: func(in *CreateInput) {
			in.EndTime = in.StartTime
		}},
		{name: "bad pattern", mutate: func(in *CreateInput) {
			in.RecurrencePattern = domain.RecurrencePattern("fortnightly")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validCreateInput(t)
			tc.mutate(&in)
			_, _, err := s.Create(context.Background(), in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSchedulerCreateRequiresEnrollment(t *testing.T) {
	repo := &fakeLessonRepo{
		createFn: func(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
			t.Fatal("repo must not be reached for unenrolled student")
			return domain.Lesson{}, nil
		},
	}
	dir := &fakeDirectory{
		isEnrolledFn: func(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
			return false, nil
		},
	}
	s := NewScheduler(repo, dir, nil, nil, 0)

	_, _, err := s.Create(context.Background(), validCreateInput(t))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestSchedulerCreateSingleLesson(t *testing.T) {
	notifier := &recordingNotifier{}
	var got domain.Lesson
	repo := &fakeLessonRepo{
		createFn: func(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
			got = lesson
			lesson.ID = uuid.Must(uuid.NewV7())
			return lesson, nil
		},
	}
	s := NewScheduler(repo, &fakeDirectory{}, notifier, nil, 0)

	in := validCreateInput(t)
	in.Date = time.Date(2026, 9, 7, 18, 30, 0, 0, time.FixedZone("X", 3*3600))
	created, res, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected id from repo")
	}
	if got.Status != domain.LessonStatusScheduled {
		t.Fatalf("status = %s, want scheduled", got.Status)
	}
	if got.RecurrencePattern != domain.RecurrenceNone || got.IsRecurring {
		t.Fatalf("single lesson carries recurrence: %+v", got)
	}
	if h, m, sec := got.Date.Clock(); h != 0 || m != 0 || sec != 0 {
		t.Fatalf("date not truncated to day: %s", got.Date)
	}
	if len(res.Written) != 0 {
		t.Fatalf("single create returned series result: %+v", res)
	}
	if evs := notifier.byName("lesson.created"); len(evs) != 1 {
		t.Fatalf("created events = %d, want 1", len(evs))
	}
}

func TestSchedulerCreateSeries(t *testing.T) {
	notifier := &recordingNotifier{}
	repo := &fakeLessonRepo{
		createSeriesFn: func(ctx context.Context, seed domain.Lesson, count int) (store.SeriesResult, error) {
			if count != 52 {
				t.Fatalf("count = %d, want default horizon 52", count)
			}
			seed.ID = uuid.Must(uuid.NewV7())
			child := seed
			child.ID = uuid.Must(uuid.NewV7())
			child.Date = seed.Date.AddDate(0, 0, 7)
			child.ParentLessonID = seed.ID
			child.IsRecurring = false
			child.RecurrencePattern = domain.RecurrenceNone
			return store.SeriesResult{
				Written: []domain.Lesson{seed, child},
				Skipped: []time.Time{seed.Date.AddDate(0, 0, 14)},
			}, nil
		},
	}
	s := NewScheduler(repo, &fakeDirectory{}, notifier, nil, 0)

	in := validCreateInput(t)
	in.RecurrencePattern = domain.RecurrenceWeekly
	seedOut, res, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if seedOut.ParentLessonID != uuid.Nil {
		t.Fatalf("seed has a parent: %+v", seedOut)
	}
	if len(res.Written) != 2 || len(res.Skipped) != 1 {
		t.Fatalf("written = %d skipped = %d, want 2 and 1", len(res.Written), len(res.Skipped))
	}
	if evs := notifier.byName("lesson.created"); len(evs) != 2 {
		t.Fatalf("created events = %d, want one per written lesson", len(evs))
	}
}

func TestSchedulerCreateSkipNotification(t *testing.T) {
	notifier := &recordingNotifier{}
	repo := &fakeLessonRepo{
		createFn: func(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
			lesson.ID = uuid.Must(uuid.NewV7())
			return lesson, nil
		},
	}
	s := NewScheduler(repo, &fakeDirectory{}, notifier, nil, 0)

	in := validCreateInput(t)
	in.SkipNotification = true
	if _, _, err := s.Create(context.Background(), in); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("events = %d, want none", len(notifier.events))
	}
}

func TestSchedulerCreatePropagatesConflict(t *testing.T) {
	repo := &fakeLessonRepo{
		createFn: func(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
			return domain.Lesson{}, store.ErrConflict
		},
	}
	s := NewScheduler(repo, &fakeDirectory{}, nil, nil, 0)

	_, _, err := s.Create(context.Background(), validCreateInput(t))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrConflict)
	}
}

func TestSchedulerUpdate(t *testing.T) {
	t.Run("empty patch rejected", func(t *testing.T) {
		s := NewScheduler(&fakeLessonRepo{}, &fakeDirectory{}, nil, nil, 0)
		_, _, err := s.Update(context.Background(), uuid.Must(uuid.NewV7()), UpdateInput{})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
	})

	t.Run("inverted times rejected", func(t *testing.T) {
		s := NewScheduler(&fakeLessonRepo{}, &fakeDirectory{}, nil, nil, 0)
		start := tod(t, "15:00")
		end := tod(t, "14:00")
		_, _, err := s.Update(context.Background(), uuid.Must(uuid.NewV7()), UpdateInput{
			Patch: store.LessonPatch{StartTime: &start, EndTime: &end},
		})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
	})

	t.Run("cascade emits per touched lesson", func(t *testing.T) {
		notifier := &recordingNotifier{}
		repo := &fakeLessonRepo{
			updateFn: func(ctx context.Context, id uuid.UUID, patch store.LessonPatch, cascade bool) (domain.Lesson, store.SeriesResult, error) {
				if !cascade {
					t.Fatal("cascade flag not forwarded")
				}
				return domain.Lesson{ID: id}, store.SeriesResult{
					Written: []domain.Lesson{{ID: uuid.Must(uuid.NewV7())}, {ID: uuid.Must(uuid.NewV7())}},
				}, nil
			},
		}
		s := NewScheduler(repo, &fakeDirectory{}, notifier, nil, 0)

		room := "B2"
		_, res, err := s.Update(context.Background(), uuid.Must(uuid.NewV7()), UpdateInput{
			Patch:   store.LessonPatch{Classroom: &room},
			Cascade: true,
		})
		if err != nil {
			t.Fatalf("Update error: %v", err)
		}
		if len(res.Written) != 2 {
			t.Fatalf("written = %d, want 2", len(res.Written))
		}
		if evs := notifier.byName("lesson.modified"); len(evs) != 3 {
			t.Fatalf("modified events = %d, want seed plus two siblings", len(evs))
		}
	})

	t.Run("not found passes through", func(t *testing.T) {
		repo := &fakeLessonRepo{
			updateFn: func(ctx context.Context, id uuid.UUID, patch store.LessonPatch, cascade bool) (domain.Lesson, store.SeriesResult, error) {
				return domain.Lesson{}, store.SeriesResult{}, store.ErrNotFound
			},
		}
		s := NewScheduler(repo, &fakeDirectory{}, nil, nil, 0)
		room := "B2"
		_, _, err := s.Update(context.Background(), uuid.Must(uuid.NewV7()), UpdateInput{
			Patch: store.LessonPatch{Classroom: &room},
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
		}
	})
}

func TestSchedulerCancelFreeSlotBroadcast(t *testing.T) {
	courseID := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	cancelledStudent := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	optedIn := uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	optedOut := uuid.MustParse("00000000-0000-0000-0000-0000000000b2")

	notifier := &recordingNotifier{}
	repo := &fakeLessonRepo{
		cancelFn: func(ctx context.Context, id uuid.UUID, cascade bool) ([]domain.Lesson, error) {
			return []domain.Lesson{{
				ID:        id,
				CourseID:  courseID,
				StudentID: cancelledStudent,
				Status:    domain.LessonStatusCancelled,
			}}, nil
		},
	}
	dir := &fakeDirectory{
		enrolledStudentsFn: func(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
			return []uuid.UUID{cancelledStudent, optedIn, optedOut}, nil
		},
		notifyPreferenceFn: func(ctx context.Context, userID uuid.UUID) (store.NotifyPreference, error) {
			return store.NotifyPreference{FreeSlotAlerts: userID == optedIn}, nil
		},
	}
	s := NewScheduler(repo, dir, notifier, nil, 0)

	cancelled, err := s.Cancel(context.Background(), uuid.Must(uuid.NewV7()), CancelInput{})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if len(cancelled) != 1 {
		t.Fatalf("cancelled = %d, want 1", len(cancelled))
	}
	if evs := notifier.byName("lesson.cancelled"); len(evs) != 1 {
		t.Fatalf("cancelled events = %d, want 1", len(evs))
	}
	free := notifier.byName("lesson.free_slot")
	if len(free) != 1 {
		t.Fatalf("free slot events = %d, want exactly the opted-in student", len(free))
	}
	if free[0].payload["student_id"] != optedIn.String() {
		t.Fatalf("free slot went to %v, want %s", free[0].payload["student_id"], optedIn)
	}
}

func TestSchedulerCancelSkipNotification(t *testing.T) {
	notifier := &recordingNotifier{}
	repo := &fakeLessonRepo{
		cancelFn: func(ctx context.Context, id uuid.UUID, cascade bool) ([]domain.Lesson, error) {
			return []domain.Lesson{{ID: id, Status: domain.LessonStatusCancelled}}, nil
		},
	}
	s := NewScheduler(repo, &fakeDirectory{}, notifier, nil, 0)

	if _, err := s.Cancel(context.Background(), uuid.Must(uuid.NewV7()), CancelInput{SkipNotification: true}); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("events = %d, want none", len(notifier.events))
	}
}

func TestSchedulerHasConflict(t *testing.T) {
	teacherID := uuid.Must(uuid.NewV7())
	busyID := uuid.Must(uuid.NewV7())
	repo := &fakeLessonRepo{
		listScheduledFn: func(ctx context.Context, id uuid.UUID, date time.Time) ([]domain.Lesson, error) {
			return []domain.Lesson{{
				ID:        busyID,
				StartTime: tod(t, "10:00"),
				EndTime:   tod(t, "11:00"),
			}}, nil
		},
	}
	s := NewScheduler(repo, &fakeDirectory{}, nil, nil, 0)
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	conflict, err := s.HasConflict(context.Background(), teacherID, date, tod(t, "10:30"), tod(t, "11:30"), uuid.Nil)
	if err != nil {
		t.Fatalf("HasConflict error: %v", err)
	}
	if !conflict {
		t.Fatal("overlapping slot reported free")
	}

	conflict, err = s.HasConflict(context.Background(), teacherID, date, tod(t, "10:30"), tod(t, "11:30"), busyID)
	if err != nil {
		t.Fatalf("HasConflict error: %v", err)
	}
	if conflict {
		t.Fatal("excluded lesson still counted as a conflict")
	}

	conflict, err = s.HasConflict(context.Background(), teacherID, date, tod(t, "11:00"), tod(t, "12:00"), uuid.Nil)
	if err != nil {
		t.Fatalf("HasConflict error: %v", err)
	}
	if conflict {
		t.Fatal("back-to-back slot reported busy")
	}
}

func TestSchedulerListValidation(t *testing.T) {
	s := NewScheduler(&fakeLessonRepo{}, &fakeDirectory{}, nil, nil, 0)

	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)
	_, err := s.List(context.Background(), store.LessonFilter{DateFrom: &from, DateTo: &to})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	_, err = s.List(context.Background(), store.LessonFilter{Status: domain.LessonStatus("stuck")})
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
