package memory

import (
	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/domain/calendar"
	"github.com/cmlabs-hris/timetable-core/internal/domain/forecast"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

// Seed helpers load reference data directly, bypassing transactions. Ids
// of zero are assigned from the store sequence and returned.

func (s *Store) AddNetwork(n org.Network) org.Network {
	s.seed(func(t *tables) {
		if n.ID == 0 {
			n.ID = t.id()
		}
		t.networks[n.ID] = n
	})
	return n
}

func (s *Store) AddNetworkConnect(c org.NetworkConnect) {
	s.seed(func(t *tables) { t.connects = append(t.connects, c) })
}

func (s *Store) AddShop(shop org.Shop) org.Shop {
	s.seed(func(t *tables) {
		if shop.ID == 0 {
			shop.ID = t.id()
		}
		t.shops[shop.ID] = shop
	})
	return shop
}

func (s *Store) AddWorkTypeName(n org.WorkTypeName) org.WorkTypeName {
	s.seed(func(t *tables) {
		if n.ID == 0 {
			n.ID = t.id()
		}
		t.workTypeNames[n.ID] = n
	})
	return n
}

func (s *Store) AddWorkType(wt org.WorkType) org.WorkType {
	s.seed(func(t *tables) {
		if wt.ID == 0 {
			wt.ID = t.id()
		}
		t.workTypes[wt.ID] = wt
	})
	return wt
}

func (s *Store) AddOperationType(op org.OperationType) org.OperationType {
	s.seed(func(t *tables) {
		if op.ID == 0 {
			op.ID = t.id()
		}
		t.opTypes[op.ID] = op
	})
	return op
}

func (s *Store) AddExchangeSettings(es org.ExchangeSettings) org.ExchangeSettings {
	s.seed(func(t *tables) {
		if es.ID == 0 {
			es.ID = t.id()
		}
		t.exchange = append(t.exchange, es)
	})
	return es
}

func (s *Store) AddBlacklist(shopID int64, symbol string) {
	s.seed(func(t *tables) {
		t.blacklist[shopID] = append(t.blacklist[shopID], symbol)
	})
}

func (s *Store) AddUser(u staff.User) staff.User {
	s.seed(func(t *tables) {
		if u.ID == 0 {
			u.ID = t.id()
		}
		t.users[u.ID] = u
	})
	return u
}

func (s *Store) AddEmployee(e staff.Employee) staff.Employee {
	s.seed(func(t *tables) {
		if e.ID == 0 {
			e.ID = t.id()
		}
		t.employees[e.ID] = e
	})
	return e
}

func (s *Store) AddEmployment(e staff.Employment) staff.Employment {
	s.seed(func(t *tables) {
		if e.ID == 0 {
			e.ID = t.id()
		}
		t.employments = append(t.employments, e)
	})
	return e
}

func (s *Store) AddPosition(p staff.Position) staff.Position {
	s.seed(func(t *tables) {
		if p.ID == 0 {
			p.ID = t.id()
		}
		t.positions[p.ID] = p
	})
	return p
}

func (s *Store) AddGroup(g staff.Group) staff.Group {
	s.seed(func(t *tables) {
		if g.ID == 0 {
			g.ID = t.id()
		}
		t.groups[g.ID] = g
	})
	return g
}

func (s *Store) AddPermission(p permission.GroupWorkerDayPermission) permission.GroupWorkerDayPermission {
	s.seed(func(t *tables) {
		if p.ID == 0 {
			p.ID = t.id()
		}
		t.permissions = append(t.permissions, p)
	})
	return p
}

func (s *Store) AddForecast(items ...forecast.PeriodClients) {
	s.seed(func(t *tables) { t.forecasts = append(t.forecasts, items...) })
}

func (s *Store) AddProductionDays(days ...calendar.ProductionDay) {
	s.seed(func(t *tables) { t.calendar = append(t.calendar, days...) })
}

func (s *Store) AddRecord(rec attendance.Record) attendance.Record {
	s.seed(func(t *tables) {
		if rec.ID == 0 {
			rec.ID = t.id()
		}
		rec.CreatedAt = s.now()
		t.records = append(t.records, rec)
	})
	return rec
}

// AddWorkerDay stores wd as given, without shape or uniqueness checks.
func (s *Store) AddWorkerDay(wd workerday.WorkerDay) workerday.WorkerDay {
	s.seed(func(t *tables) {
		if wd.ID == 0 {
			wd.ID = t.id()
		}
		now := s.now()
		if wd.CreatedAt.IsZero() {
			wd.CreatedAt = now
		}
		wd.UpdatedAt = now
		t.workerDays[wd.ID] = wd.Clone()
	})
	return wd
}

func (s *Store) seed(fn func(t *tables)) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}
