package permission

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

// SystemUserID acts for automated flows: every check passes.
const SystemUserID int64 = 0

type checker struct {
	perms permission.Repository
	staff staff.Repository
	org   org.Repository
	now   func() time.Time
}

func NewChecker(perms permission.Repository, staffRepo staff.Repository, orgRepo org.Repository) permission.Checker {
	return &checker{perms: perms, staff: staffRepo, org: orgRepo, now: time.Now}
}

// NewCheckerWithClock is NewChecker with a fixed notion of today.
func NewCheckerWithClock(perms permission.Repository, staffRepo staff.Repository, orgRepo org.Repository, now func() time.Time) permission.Checker {
	return &checker{perms: perms, staff: staffRepo, org: orgRepo, now: now}
}

func (c *checker) ForUser(ctx context.Context, userID int64) (permission.Session, error) {
	if userID == SystemUserID {
		return systemSession{}, nil
	}

	user, err := c.staff.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	network, err := c.org.GetNetwork(ctx, user.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("load network %d: %w", user.NetworkID, err)
	}
	employees, err := c.staff.ListEmployeesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load employees of user %d: %w", userID, err)
	}

	var employments []staff.Employment
	if len(employees) > 0 {
		ids := make([]int64, 0, len(employees))
		for _, e := range employees {
			ids = append(ids, e.ID)
		}
		employments, err = c.staff.ListEmployments(ctx, staff.EmploymentFilter{EmployeeIDs: ids})
		if err != nil {
			return nil, fmt.Errorf("load employments of user %d: %w", userID, err)
		}
	}

	return &session{
		c:            c,
		user:         user,
		network:      network,
		employments:  employments,
		today:        dates.Truncate(c.now()),
		groupsByDt:   make(map[groupKey][]staff.Group),
		subordinates: make(map[time.Time]map[int64]bool),
		employeeNet:  make(map[int64]int64),
		shopsByID:    make(map[int64]org.Shop),
	}, nil
}

// session caches what one request learns about its user. It is dropped
// together with the request.
type session struct {
	c           *checker
	user        staff.User
	network     org.Network
	employments []staff.Employment
	today       time.Time

	mu           sync.Mutex
	tree         *org.Tree
	connects     []org.NetworkConnect
	connectsOK   bool
	groupsByDt   map[groupKey][]staff.Group
	subordinates map[time.Time]map[int64]bool
	employeeNet  map[int64]int64
	shopsByID    map[int64]org.Shop
}

func (s *session) UserID() int64            { return s.user.ID }
func (s *session) NetworkID() int64         { return s.network.ID }
func (s *session) BlackListSymbol() *string { return s.user.BlackListSymbol }

func (s *session) CanChangeProtected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups, err := s.groupsOn(context.Background(), s.today, nil)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(groups, func(g staff.Group) bool { return g.CanChangeProtected })
}

func (s *session) Check(ctx context.Context, req permission.Request) (permission.GroupWorkerDayPermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEmployment(ctx, req); err != nil {
		return permission.GroupWorkerDayPermission{}, err
	}

	groups, err := s.groupsOn(ctx, req.Dt, req.ShopID)
	if err != nil {
		return permission.GroupWorkerDayPermission{}, err
	}
	if len(groups) == 0 {
		return permission.GroupWorkerDayPermission{}, s.deny(req, nil)
	}
	groupIDs := make([]int64, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}

	rows, err := s.c.perms.List(ctx, permission.Filter{
		GroupIDs:  groupIDs,
		Action:    req.Action,
		GraphType: req.GraphType,
		WDType:    req.WDType,
	})
	if err != nil {
		return permission.GroupWorkerDayPermission{}, fmt.Errorf("load group permissions: %w", err)
	}
	slices.SortFunc(rows, func(a, b permission.GroupWorkerDayPermission) int { return cmp.Compare(a.ID, b.ID) })

	var closest *permission.GroupWorkerDayPermission
	for _, p := range rows {
		ok, err := s.matchesEmployee(ctx, p.EmployeeType, req)
		if err != nil {
			return permission.GroupWorkerDayPermission{}, err
		}
		if !ok {
			continue
		}
		ok, err = s.matchesShop(ctx, p.ShopType, req)
		if err != nil {
			return permission.GroupWorkerDayPermission{}, err
		}
		if !ok {
			continue
		}
		if p.FitsDate(req.Dt, s.today) {
			return p, nil
		}
		if closest == nil {
			closest = &p
		}
	}
	return permission.GroupWorkerDayPermission{}, s.deny(req, closest)
}

func (s *session) deny(req permission.Request, p *permission.GroupWorkerDayPermission) error {
	var from, to *time.Time
	if p != nil {
		from, to = p.Window(s.today)
	}
	msg := workerday.DenyMessage(req.WDType, string(req.Action), req.EmployeeID, req.ShopID, from, to)
	return workerday.PermissionDenied("%s", msg)
}

func (s *session) checkEmployment(ctx context.Context, req permission.Request) error {
	if req.SkipEmploymentCheck || req.EmployeeID == nil || !req.WDType.IsTimeRanged() {
		return nil
	}
	if !s.network.Settings.RequireEmploymentForWorkdays {
		return nil
	}
	emps, err := s.c.staff.ListEmployments(ctx, staff.EmploymentFilter{
		EmployeeIDs: []int64{*req.EmployeeID},
		DtFrom:      &req.Dt,
		DtTo:        &req.Dt,
	})
	if err != nil {
		return fmt.Errorf("load employments of employee %d: %w", *req.EmployeeID, err)
	}
	if len(staff.ActiveOn(emps, req.Dt)) == 0 {
		return workerday.EmploymentInactive(*req.EmployeeID, req.Dt)
	}
	return nil
}

type groupKey struct {
	dt     time.Time
	shopID int64
}

// groupsOn returns the user's groups through employments active on dt,
// falling back to the ones active today. With a shop, only employments at
// the shop or above it count; a shop none of them covers (another branch,
// another network) is judged by all of them.
func (s *session) groupsOn(ctx context.Context, dt time.Time, shopID *int64) ([]staff.Group, error) {
	key := groupKey{dt: dt}
	if shopID != nil {
		key.shopID = *shopID
	}
	if g, ok := s.groupsByDt[key]; ok {
		return g, nil
	}
	active := staff.ActiveOn(s.employments, dt)
	if len(active) == 0 {
		active = staff.ActiveOn(s.employments, s.today)
	}
	if shopID != nil {
		tree, err := s.loadTree(ctx)
		if err != nil {
			return nil, err
		}
		above := tree.Ancestors(*shopID)
		covering := slices.DeleteFunc(slices.Clone(active), func(e staff.Employment) bool {
			return !slices.Contains(above, e.ShopID)
		})
		if len(covering) > 0 {
			active = covering
		}
	}

	var ids, positionIDs []int64
	for _, e := range active {
		if e.FunctionGroupID != nil {
			ids = append(ids, *e.FunctionGroupID)
		}
		if e.PositionID != nil {
			positionIDs = append(positionIDs, *e.PositionID)
		}
	}
	if len(positionIDs) > 0 {
		positions, err := s.c.staff.ListPositions(ctx, positionIDs)
		if err != nil {
			return nil, fmt.Errorf("load positions: %w", err)
		}
		for _, p := range positions {
			if p.GroupID != nil {
				ids = append(ids, *p.GroupID)
			}
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var groups []staff.Group
	if len(ids) > 0 {
		var err error
		groups, err = s.c.staff.ListGroups(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load groups: %w", err)
		}
	}
	s.groupsByDt[key] = groups
	return groups, nil
}

func (s *session) loadTree(ctx context.Context) (*org.Tree, error) {
	if s.tree != nil {
		return s.tree, nil
	}
	netID := s.network.ID
	shops, err := s.c.org.ListShops(ctx, org.ShopFilter{NetworkID: &netID})
	if err != nil {
		return nil, fmt.Errorf("load shops of network %d: %w", netID, err)
	}
	for _, sh := range shops {
		s.shopsByID[sh.ID] = sh
	}
	s.tree = org.NewTree(shops)
	return s.tree, nil
}

// myShops is every shop at or below a shop where the user works on dt.
func (s *session) myShops(ctx context.Context, dt time.Time) (map[int64]bool, error) {
	tree, err := s.loadTree(ctx)
	if err != nil {
		return nil, err
	}
	active := staff.ActiveOn(s.employments, dt)
	if len(active) == 0 {
		active = staff.ActiveOn(s.employments, s.today)
	}
	out := make(map[int64]bool)
	for _, e := range active {
		for _, id := range tree.Descendants(e.ShopID) {
			out[id] = true
		}
	}
	return out, nil
}

func (s *session) shop(ctx context.Context, id int64) (org.Shop, error) {
	if sh, ok := s.shopsByID[id]; ok {
		return sh, nil
	}
	sh, err := s.c.org.GetShop(ctx, id)
	if err != nil {
		return org.Shop{}, fmt.Errorf("load shop %d: %w", id, err)
	}
	s.shopsByID[id] = sh
	return sh, nil
}

func (s *session) loadConnects(ctx context.Context) ([]org.NetworkConnect, error) {
	if s.connectsOK {
		return s.connects, nil
	}
	connects, err := s.c.org.ListNetworkConnects(ctx, s.network.ID)
	if err != nil {
		return nil, fmt.Errorf("load network connects: %w", err)
	}
	s.connects, s.connectsOK = connects, true
	return connects, nil
}

// connected reports a client -> outsourcing link.
func (s *session) connected(ctx context.Context, clientID, outsourcingID int64) (bool, error) {
	connects, err := s.loadConnects(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(connects, org.NetworkConnect{ClientID: clientID, OutsourcingID: outsourcingID}), nil
}

func (s *session) employeeNetwork(ctx context.Context, employeeID int64) (int64, error) {
	if n, ok := s.employeeNet[employeeID]; ok {
		return n, nil
	}
	emp, err := s.c.staff.GetEmployee(ctx, employeeID)
	if err != nil {
		return 0, fmt.Errorf("load employee %d: %w", employeeID, err)
	}
	user, err := s.c.staff.GetUser(ctx, emp.UserID)
	if err != nil {
		return 0, fmt.Errorf("load user of employee %d: %w", employeeID, err)
	}
	s.employeeNet[employeeID] = user.NetworkID
	return user.NetworkID, nil
}

func (s *session) matchesEmployee(ctx context.Context, t permission.EmployeeType, req permission.Request) (bool, error) {
	if req.EmployeeID == nil {
		return true, nil
	}
	empID := *req.EmployeeID

	switch t {
	case permission.EmployeeSubordinate:
		subs, err := s.subordinatesOn(ctx, req.Dt)
		if err != nil {
			return false, err
		}
		return subs[empID], nil
	case permission.EmployeeMyShopsAny:
		shops, err := s.myShops(ctx, req.Dt)
		if err != nil {
			return false, err
		}
		emps, err := s.c.staff.ListEmployments(ctx, staff.EmploymentFilter{EmployeeIDs: []int64{empID}, DtFrom: &req.Dt, DtTo: &req.Dt})
		if err != nil {
			return false, fmt.Errorf("load employments of employee %d: %w", empID, err)
		}
		return slices.ContainsFunc(staff.ActiveOn(emps, req.Dt), func(e staff.Employment) bool { return shops[e.ShopID] }), nil
	case permission.EmployeeMyNetwork:
		n, err := s.employeeNetwork(ctx, empID)
		if err != nil {
			return false, err
		}
		return n == s.network.ID, nil
	case permission.EmployeeOutsourceNetwork:
		n, err := s.employeeNetwork(ctx, empID)
		if err != nil {
			return false, err
		}
		return s.connected(ctx, s.network.ID, n)
	}
	return false, nil
}

func (s *session) matchesShop(ctx context.Context, t permission.ShopType, req permission.Request) (bool, error) {
	if req.ShopID == nil {
		return true, nil
	}
	shopID := *req.ShopID

	switch t {
	case permission.ShopMyShops:
		shops, err := s.myShops(ctx, req.Dt)
		if err != nil {
			return false, err
		}
		return shops[shopID], nil
	case permission.ShopMyNetwork, permission.ShopOutsourceNetwork, permission.ShopClientNetwork:
		sh, err := s.shop(ctx, shopID)
		if err != nil {
			if errors.Is(err, org.ErrShopNotFound) {
				return false, nil
			}
			return false, err
		}
		switch t {
		case permission.ShopMyNetwork:
			return sh.NetworkID == s.network.ID, nil
		case permission.ShopOutsourceNetwork:
			return s.connected(ctx, s.network.ID, sh.NetworkID)
		default:
			return s.connected(ctx, sh.NetworkID, s.network.ID)
		}
	}
	return false, nil
}

// subordinatesOn walks the shop tree down from every shop where the user
// works on dt and keeps employees whose group is subordinate to one of the
// user's groups.
func (s *session) subordinatesOn(ctx context.Context, dt time.Time) (map[int64]bool, error) {
	if subs, ok := s.subordinates[dt]; ok {
		return subs, nil
	}

	groups, err := s.groupsOn(ctx, dt, nil)
	if err != nil {
		return nil, err
	}
	subGroups := make(map[int64]bool)
	for _, g := range groups {
		for _, id := range g.SubordinateGroupIDs {
			subGroups[id] = true
		}
	}

	subs := make(map[int64]bool)
	if len(subGroups) > 0 {
		shops, err := s.myShops(ctx, dt)
		if err != nil {
			return nil, err
		}
		shopIDs := make([]int64, 0, len(shops))
		for id := range shops {
			shopIDs = append(shopIDs, id)
		}
		emps, err := s.c.staff.ListEmployments(ctx, staff.EmploymentFilter{ShopIDs: shopIDs, DtFrom: &dt, DtTo: &dt})
		if err != nil {
			return nil, fmt.Errorf("load employments below user shops: %w", err)
		}
		emps = staff.ActiveOn(emps, dt)

		positionGroup, err := s.positionGroups(ctx, emps)
		if err != nil {
			return nil, err
		}
		for _, e := range emps {
			if e.FunctionGroupID != nil && subGroups[*e.FunctionGroupID] {
				subs[e.EmployeeID] = true
				continue
			}
			if e.PositionID != nil {
				if gid, ok := positionGroup[*e.PositionID]; ok && subGroups[gid] {
					subs[e.EmployeeID] = true
				}
			}
		}
	}
	s.subordinates[dt] = subs
	return subs, nil
}

func (s *session) positionGroups(ctx context.Context, emps []staff.Employment) (map[int64]int64, error) {
	var ids []int64
	for _, e := range emps {
		if e.PositionID != nil {
			ids = append(ids, *e.PositionID)
		}
	}
	out := make(map[int64]int64)
	if len(ids) == 0 {
		return out, nil
	}
	slices.Sort(ids)
	positions, err := s.c.staff.ListPositions(ctx, slices.Compact(ids))
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	for _, p := range positions {
		if p.GroupID != nil {
			out[p.ID] = *p.GroupID
		}
	}
	return out, nil
}

type systemSession struct{}

func (systemSession) UserID() int64            { return SystemUserID }
func (systemSession) NetworkID() int64         { return 0 }
func (systemSession) CanChangeProtected() bool { return true }
func (systemSession) BlackListSymbol() *string { return nil }

func (systemSession) Check(ctx context.Context, req permission.Request) (permission.GroupWorkerDayPermission, error) {
	return permission.GroupWorkerDayPermission{
		Action:            req.Action,
		GraphType:         req.GraphType,
		WDType:            req.WDType,
		AllowApproveFirst: true,
	}, nil
}
