package shared

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Filter is the list query shared by the repositories. Filters carries
// repository-specific keys such as "sort_by".
type Filter struct {
	Page     int
	PageSize int
	OrderDir string
	Filters  map[string]any
}

func DefaultFilter() Filter {
	return Filter{Page: 1, PageSize: DefaultPageSize, OrderDir: "asc", Filters: map[string]any{}}
}

// Normalize clamps paging into range. Any direction other than "desc" reads as "asc".
func (f Filter) Normalize() Filter {
	f.Page = max(f.Page, 1)
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	f.PageSize = min(f.PageSize, MaxPageSize)
	if f.OrderDir != "desc" {
		f.OrderDir = "asc"
	}
	return f
}

func (f Filter) Offset() int { return (f.Page - 1) * f.PageSize }
