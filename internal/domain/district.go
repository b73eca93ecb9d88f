package domain

// District is one row of the location reference catalog: a postal district
// code, its display name, and the market segment (region) it belongs to.
// Regions are the top level of the location drill hierarchy, so a district
// drill resolves its segment through this catalog.
type District struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region"`
}
