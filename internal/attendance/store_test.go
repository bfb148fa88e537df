package attendance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/infra"
	"github.com/rollcall/rollcall/internal/member"
)

// testDatabaseEnv names a disposable Postgres database; the store tests
// create and delete their own rows in it.
const testDatabaseEnv = "ROLLCALL_TEST_DATABASE_URL"

type storeCase struct {
	store  Store
	repo   member.Repository
	phones []string
}

// eachStore runs fn against every Store implementation. Postgres joins the
// run only when testDatabaseEnv is set.
func eachStore(t *testing.T, fn func(t *testing.T, sc storeCase)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, storeCase{store: NewMemoryStore(), repo: member.NewMemoryRepository(), phones: storePhones(t)})
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := infra.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		fn(t, storeCase{store: NewSQLiteStore(db), repo: member.NewSQLiteRepository(db), phones: storePhones(t)})
	})
	t.Run("postgres", func(t *testing.T) {
		url := os.Getenv(testDatabaseEnv)
		if url == "" {
			t.Skipf("%s not set", testDatabaseEnv)
		}
		ctx := context.Background()
		pool, err := infra.NewPostgresPool(ctx, url)
		if err != nil {
			t.Fatalf("connect postgres: %v", err)
		}
		phones := storePhones(t)
		t.Cleanup(func() {
			if _, err := pool.Exec(ctx, `DELETE FROM attendance WHERE phone = ANY($1)`, phones); err != nil {
				t.Errorf("cleanup attendance: %v", err)
			}
			if _, err := pool.Exec(ctx, `DELETE FROM members WHERE phone = ANY($1)`, phones); err != nil {
				t.Errorf("cleanup members: %v", err)
			}
			pool.Close()
		})
		fn(t, storeCase{store: NewPostgresStore(pool), repo: member.NewPostgresRepository(pool), phones: phones})
	})
}

// storePhones returns phones unlikely to collide with other runs sharing a
// database.
func storePhones(t *testing.T) []string {
	t.Helper()
	base := time.Now().UnixNano() % 100_000_000
	return []string{
		fmt.Sprintf("71%08d", base),
		fmt.Sprintf("72%08d", base),
	}
}

func (sc storeCase) seed(t *testing.T, phone string) {
	t.Helper()
	m := member.Member{Phone: phone, Name: "Member " + phone[len(phone)-4:], CreatedAt: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	if err := sc.repo.Create(context.Background(), m); err != nil {
		t.Fatalf("seed member %s: %v", phone, err)
	}
}

func openRecord(phone string, checkIn time.Time) Record {
	return Record{
		ID:      uuid.NewString(),
		Phone:   phone,
		Name:    "Asha",
		Day:     clock.StartOfDay(checkIn),
		CheckIn: checkIn,
	}
}

func TestStoreInsertGetKeepsFacilityDay(t *testing.T) {
	eachStore(t, func(t *testing.T, sc storeCase) {
		ctx := context.Background()
		phone := sc.phones[0]
		sc.seed(t, phone)

		// 00:20 facility time is still the previous day in UTC.
		checkIn := time.Date(2026, 3, 2, 0, 20, 0, 0, clock.Location)
		rec := openRecord(phone, checkIn)
		if err := sc.store.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := sc.store.Get(ctx, phone, checkIn)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != rec.ID || got.Phone != phone || got.Name != "Asha" {
			t.Fatalf("unexpected record %+v", got)
		}
		if clock.DayKey(got.Day) != "2026-03-02" || !got.Day.Equal(rec.Day) {
			t.Fatalf("expected day 2026-03-02, got %s", clock.DayKey(got.Day))
		}
		if !got.CheckIn.Equal(checkIn) {
			t.Fatalf("expected check-in %s, got %s", checkIn, got.CheckIn)
		}
		if got.CheckOut != nil || got.ClosedBy != "" || got.State() != StateCheckedIn {
			t.Fatalf("expected open record, got %+v", got)
		}

		if _, err := sc.store.Get(ctx, phone, checkIn.AddDate(0, 0, -1)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found for previous day, got %v", err)
		}
	})
}

func TestStoreInsertDuplicateDay(t *testing.T) {
	eachStore(t, func(t *testing.T, sc storeCase) {
		ctx := context.Background()
		phone := sc.phones[0]
		sc.seed(t, phone)

		first := openRecord(phone, time.Date(2026, 3, 2, 9, 0, 0, 0, clock.Location))
		if err := sc.store.Insert(ctx, first); err != nil {
			t.Fatalf("insert: %v", err)
		}
		second := openRecord(phone, time.Date(2026, 3, 2, 17, 0, 0, 0, clock.Location))
		if err := sc.store.Insert(ctx, second); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected duplicate, got %v", err)
		}

		got, err := sc.store.Get(ctx, phone, first.Day)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != first.ID {
			t.Fatalf("duplicate insert replaced the first record")
		}
	})
}

func TestStoreMarkOut(t *testing.T) {
	eachStore(t, func(t *testing.T, sc storeCase) {
		ctx := context.Background()
		phone := sc.phones[0]
		sc.seed(t, phone)
		checkIn := time.Date(2026, 3, 2, 9, 0, 0, 0, clock.Location)
		out := checkIn.Add(8 * time.Hour)

		if err := sc.store.MarkOut(ctx, phone, checkIn, out, ActorSelf); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found before check-in, got %v", err)
		}
		if err := sc.store.Insert(ctx, openRecord(phone, checkIn)); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := sc.store.MarkOut(ctx, phone, checkIn, out, ActorOperator); err != nil {
			t.Fatalf("mark out: %v", err)
		}
		if err := sc.store.MarkOut(ctx, phone, checkIn, out.Add(time.Minute), ActorSelf); !errors.Is(err, ErrAlreadyOut) {
			t.Fatalf("expected already out, got %v", err)
		}

		got, err := sc.store.Get(ctx, phone, checkIn)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.CheckOut == nil || !got.CheckOut.Equal(out) {
			t.Fatalf("expected check-out %s, got %v", out, got.CheckOut)
		}
		if got.ClosedBy != ActorOperator || got.State() != StateCheckedOut {
			t.Fatalf("expected operator close, got %+v", got)
		}
	})
}

func TestStoreHistoryNewestFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, sc storeCase) {
		ctx := context.Background()
		phone, other := sc.phones[0], sc.phones[1]
		sc.seed(t, phone)
		sc.seed(t, other)

		first := time.Date(2026, 3, 1, 9, 0, 0, 0, clock.Location)
		for i := 0; i < 4; i++ {
			if err := sc.store.Insert(ctx, openRecord(phone, first.AddDate(0, 0, i))); err != nil {
				t.Fatalf("insert day %d: %v", i, err)
			}
		}
		if err := sc.store.Insert(ctx, openRecord(other, first.AddDate(0, 0, 3))); err != nil {
			t.Fatalf("insert other: %v", err)
		}

		got, err := sc.store.History(ctx, phone, first.AddDate(0, 0, 1), 10)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		want := []string{"2026-03-04", "2026-03-03", "2026-03-02"}
		if len(got) != len(want) {
			t.Fatalf("expected %d records, got %d", len(want), len(got))
		}
		for i, rec := range got {
			if rec.Phone != phone || clock.DayKey(rec.Day) != want[i] {
				t.Fatalf("record %d: got %s on %s, want %s", i, rec.Phone, clock.DayKey(rec.Day), want[i])
			}
		}

		limited, err := sc.store.History(ctx, phone, first, 2)
		if err != nil {
			t.Fatalf("limited history: %v", err)
		}
		if len(limited) != 2 || clock.DayKey(limited[0].Day) != "2026-03-04" {
			t.Fatalf("expected two newest records, got %d", len(limited))
		}
	})
}

func TestStoreListDayOrdersByCheckIn(t *testing.T) {
	eachStore(t, func(t *testing.T, sc storeCase) {
		ctx := context.Background()
		early, late := sc.phones[0], sc.phones[1]
		sc.seed(t, early)
		sc.seed(t, late)

		day := time.Date(2026, 3, 2, 0, 0, 0, 0, clock.Location)
		if err := sc.store.Insert(ctx, openRecord(late, day.Add(10*time.Hour))); err != nil {
			t.Fatalf("insert late: %v", err)
		}
		if err := sc.store.Insert(ctx, openRecord(early, day.Add(7*time.Hour))); err != nil {
			t.Fatalf("insert early: %v", err)
		}
		if err := sc.store.Insert(ctx, openRecord(early, day.AddDate(0, 0, 1).Add(7*time.Hour))); err != nil {
			t.Fatalf("insert next day: %v", err)
		}

		got, err := sc.store.ListDay(ctx, day.Add(15*time.Hour))
		if err != nil {
			t.Fatalf("list day: %v", err)
		}
		// Other runs may share a Postgres database, so only our phones count.
		var phones []string
		for _, rec := range got {
			if rec.Phone == early || rec.Phone == late {
				phones = append(phones, rec.Phone)
			}
		}
		if len(phones) != 2 || phones[0] != early || phones[1] != late {
			t.Fatalf("expected [%s %s], got %v", early, late, phones)
		}
	})
}
