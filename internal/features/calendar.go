package features

import (
	"time"

	"tsprep/internal/dataset"
)

// calendarNames lists the derived calendar columns in output order.
var calendarNames = []string{
	"hour_of_day",
	"day_of_week",
	"day_of_month",
	"month",
	"quarter",
	"year",
	"is_weekend",
	"day_of_year",
	"week_of_year",
}

// CalendarColumns derives the calendar features from a timestamp column.
// Pure function of the timestamp values; day_of_week follows time.Weekday
// (Sunday=0) and week_of_year is the ISO week.
func CalendarColumns(ts *dataset.Column) []*dataset.Column {
	n := ts.Len()
	values := make(map[string][]float64, len(calendarNames))
	for _, name := range calendarNames {
		values[name] = make([]float64, n)
	}

	for i, t := range ts.Times {
		values["hour_of_day"][i] = float64(t.Hour())
		values["day_of_week"][i] = float64(t.Weekday())
		values["day_of_month"][i] = float64(t.Day())
		values["month"][i] = float64(t.Month())
		values["quarter"][i] = float64((int(t.Month())-1)/3 + 1)
		values["year"][i] = float64(t.Year())
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			values["is_weekend"][i] = 1
		}
		values["day_of_year"][i] = float64(t.YearDay())
		_, week := t.ISOWeek()
		values["week_of_year"][i] = float64(week)
	}

	cols := make([]*dataset.Column, 0, len(calendarNames))
	for _, name := range calendarNames {
		cols = append(cols, dataset.NewNumericColumn(name, dataset.RoleFeature, values[name], nil))
	}
	return cols
}
