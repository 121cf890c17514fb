package mapclient

// RouteTable resolves marker colours from the route info list.
type RouteTable struct {
	routes []RouteInfo
}

func NewRouteTable(routes []RouteInfo) *RouteTable {
	return &RouteTable{routes: routes}
}

// Color returns the colour of the route whose id equals line. Zero or
// several matching routes resolve to FallbackColor.
func (table *RouteTable) Color(line string) string {
	if table == nil {
		return FallbackColor
	}

	color := ""
	matches := 0
	for _, route := range table.routes {
		if route.ID == line {
			color = route.Color
			matches++
		}
	}
	if matches != 1 {
		return FallbackColor
	}
	return color
}

func (table *RouteTable) Len() int {
	if table == nil {
		return 0
	}
	return len(table.routes)
}
