package workerday

// Type is the kind of a worker day. The set is closed; facets below are the
// only place that decides how a type behaves.
type Type string

const (
	TypeWorkday       Type = "WORKDAY"
	TypeQualification Type = "QUALIFICATION"

	TypeBusinessTrip  Type = "BUSINESS_TRIP"
	TypeVacation      Type = "VACATION"
	TypeExtraVacation Type = "EXTRA_VACATION"
	TypeGovernment    Type = "GOVERNMENT"
	TypeHolidayWork   Type = "HOLIDAY_WORK"
	TypeDonor         Type = "DONOR_OR_CARE_FOR_DISABLED_PEOPLE"

	TypeHoliday          Type = "HOLIDAY"
	TypeSick             Type = "SICK"
	TypeMaternity        Type = "MATERNITY"
	TypeMaternityCare    Type = "MATERNITY_CARE"
	TypeAbsence          Type = "ABSENCE"
	TypeSelfVacation     Type = "SELF_VACATION"
	TypeTrainVacation    Type = "TRAIN_VACATION"
	TypeEmpty            Type = "EMPTY"
	TypeRealAbsence      Type = "REAL_ABSENCE"
	TypeSelfVacationTrue Type = "SELF_VACATION_TRUE"
)

type facets struct {
	dayoff     bool
	workHours  bool
	reduceNorm bool
}

var catalog = map[Type]facets{
	TypeWorkday:       {workHours: true},
	TypeQualification: {workHours: true},

	TypeBusinessTrip:  {dayoff: true, workHours: true},
	TypeVacation:      {dayoff: true, workHours: true, reduceNorm: true},
	TypeExtraVacation: {dayoff: true, workHours: true},
	TypeGovernment:    {dayoff: true, workHours: true},
	TypeHolidayWork:   {dayoff: true, workHours: true},
	TypeDonor:         {dayoff: true, workHours: true},

	TypeHoliday:          {dayoff: true},
	TypeSick:             {dayoff: true, reduceNorm: true},
	TypeMaternity:        {dayoff: true, reduceNorm: true},
	TypeMaternityCare:    {dayoff: true, reduceNorm: true},
	TypeAbsence:          {dayoff: true},
	TypeSelfVacation:     {dayoff: true, reduceNorm: true},
	TypeTrainVacation:    {dayoff: true, reduceNorm: true},
	TypeEmpty:            {dayoff: true},
	TypeRealAbsence:      {dayoff: true},
	TypeSelfVacationTrue: {dayoff: true},
}

func (t Type) Valid() bool {
	_, ok := catalog[t]
	return ok
}

// IsDayoff reports whether the day carries no shift times.
func (t Type) IsDayoff() bool { return catalog[t].dayoff }

// HasWorkHours reports whether the day contributes paid hours.
func (t Type) HasWorkHours() bool { return catalog[t].workHours }

// ReducesNorm reports whether the day lowers the monthly hour norm.
func (t Type) ReducesNorm() bool { return catalog[t].reduceNorm }

// IsTimeRanged is true for types that carry dttm_work_start/end, a shop and
// work-type details.
func (t Type) IsTimeRanged() bool {
	f, ok := catalog[t]
	return ok && !f.dayoff
}

// IsNonWork is a dayoff that pays nothing (HOLIDAY, SICK and friends). A
// vacancy may replace these when confirmed.
func (t Type) IsNonWork() bool {
	f := catalog[t]
	return f.dayoff && !f.workHours
}

// PaidDayoff is a dayoff credited with the position's paid hours.
func (t Type) PaidDayoff() bool {
	f := catalog[t]
	return f.dayoff && f.workHours
}

// Types lists the whole catalog, for permission fixtures.
func Types() []Type {
	out := make([]Type, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	return out
}

type Source string

const (
	SourceManual             Source = "manual"
	SourceDuplicate          Source = "duplicate"
	SourceCopyRange          Source = "copy-range"
	SourceCopyApproved       Source = "copy-approved"
	SourceAutoVacancy        Source = "auto-vacancy"
	SourceOnApprove          Source = "on-approve"
	SourceOnCancelVacancy    Source = "on-cancel-vacancy"
	SourceShiftElongation    Source = "shift-elongation"
	SourceChangeList         Source = "change-list"
	SourceExchange           Source = "exchange"
	SourceExchangeApproved   Source = "exchange-approved"
	SourceHolidayExchange    Source = "holiday-exchange"
	SourceFactFromAttendance Source = "fact-from-attendance"
	SourceIntegration        Source = "integration"
)

// GraphType selects plan or fact rows.
type GraphType string

const (
	GraphPlan GraphType = "PLAN"
	GraphFact GraphType = "FACT"
)

func GraphOf(isFact bool) GraphType {
	if isFact {
		return GraphFact
	}
	return GraphPlan
}

func (g GraphType) IsFact() bool { return g == GraphFact }
