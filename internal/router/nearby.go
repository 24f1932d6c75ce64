package router

import (
	"fmt"

	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// matchLevel ranks how closely an instance's location matches the
// caller's, from least specific (levelAll) to most specific (levelCampus);
// levelUnknown means either side has no location. Higher is better.
type matchLevel int

const (
	levelUnknown matchLevel = iota
	levelAll
	levelRegion
	levelZone
	levelCampus
)

// parseMatchLevel maps a nearby-router config string ("all", "region",
// "zone", "campus") to its matchLevel, per spec §4.4's match_level /
// max_match_level knobs.
func parseMatchLevel(name string) (matchLevel, error) {
	switch name {
	case "all":
		return levelAll, nil
	case "region":
		return levelRegion, nil
	case "zone":
		return levelZone, nil
	case "campus":
		return levelCampus, nil
	default:
		return levelUnknown, fmt.Errorf("unknown nearby router match level %q", name)
	}
}

func level(caller, inst model.Location) matchLevel {
	if caller.Empty() || inst.Empty() {
		return levelUnknown
	}
	if caller.Region != inst.Region {
		return levelAll
	}
	if caller.Zone != inst.Zone {
		return levelRegion
	}
	if caller.Campus != inst.Campus {
		return levelZone
	}
	return levelCampus
}

// NearbyBasedRouter prefers instances geographically close to the caller,
// falling back to progressively wider scopes (campus -> zone -> region ->
// all) between MatchLevel (the narrowest scope tried first) and
// MaxMatchLevel (the widest scope the router is allowed to degrade to),
// stopping at the first level whose candidate set is non-empty and, when
// degrade-by-unhealthy-percent is on, under the unhealthy-percentage
// threshold; a level at or over that threshold is skipped.
type NearbyBasedRouter struct {
	StrictNearby                    bool
	EnableDegradeByUnhealthyPercent bool
	UnhealthyPercentToDegrade       int
	MatchLevel                      matchLevel
	MaxMatchLevel                   matchLevel
}

// NewNearbyBasedRouter builds a NearbyBasedRouter. matchLevelName and
// maxMatchLevelName name the narrowest and widest scopes the router may
// search, per spec §4.4 ("Iterate from match_level up to
// max_match_level"); matchLevelName must be at least as specific as
// maxMatchLevelName; a caller that configures it backwards gets an error
// here rather than a router that silently misbehaves at request time.
func NewNearbyBasedRouter(strict bool, enableDegrade bool, unhealthyPercent int, matchLevelName, maxMatchLevelName string) (*NearbyBasedRouter, error) {
	matchLv, err := parseMatchLevel(matchLevelName)
	if err != nil {
		return nil, err
	}
	maxMatchLv, err := parseMatchLevel(maxMatchLevelName)
	if err != nil {
		return nil, err
	}
	if maxMatchLv > matchLv {
		return nil, polerr.LocationMismatch(fmt.Sprintf(
			"nearby router max_match_level %q is more specific than match_level %q", maxMatchLevelName, matchLevelName))
	}
	return &NearbyBasedRouter{
		StrictNearby:                    strict,
		EnableDegradeByUnhealthyPercent: enableDegrade,
		UnhealthyPercentToDegrade:       unhealthyPercent,
		MatchLevel:                      matchLv,
		MaxMatchLevel:                   maxMatchLv,
	}, nil
}

func (r *NearbyBasedRouter) Name() string   { return NameNearbyRouter }
func (r *NearbyBasedRouter) Init() error    { return nil }
func (r *NearbyBasedRouter) Destroy() error { return nil }

func (r *NearbyBasedRouter) Enable(ctx RouteContext, _ *model.ServiceInstances) bool {
	return !ctx.Location.Empty()
}

// levelsFromMatchToMax lists r.MatchLevel down to r.MaxMatchLevel, in
// that (narrowest-first) order.
func (r *NearbyBasedRouter) levelsFromMatchToMax() []matchLevel {
	levels := make([]matchLevel, 0, int(r.MatchLevel-r.MaxMatchLevel)+1)
	for lv := r.MatchLevel; lv >= r.MaxMatchLevel; lv-- {
		levels = append(levels, lv)
	}
	return levels
}

func (r *NearbyBasedRouter) Route(ctx RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	if r.MaxMatchLevel > r.MatchLevel {
		return nil, polerr.LocationMismatch("nearby router max_match_level is more specific than match_level")
	}

	byLevel := map[matchLevel][]*model.Instance{}
	for _, inst := range instances.Instances {
		lv := level(ctx.Location, inst.Location)
		byLevel[lv] = append(byLevel[lv], inst)
	}

	if r.StrictNearby {
		// Never fall back beyond the caller's configured starting scope:
		// either that scope has usable instances or the chain reports
		// none found.
		return instances.Clone(byLevel[r.MatchLevel]), nil
	}

	for _, lv := range r.levelsFromMatchToMax() {
		candidates := byLevel[lv]
		if len(candidates) == 0 || r.degraded(candidates) {
			continue
		}
		return instances.Clone(candidates), nil
	}
	// Nothing survived degrade filtering between MatchLevel and
	// MaxMatchLevel: fall back to the full, unfiltered set rather than
	// report no instances.
	return instances.Clone(append([]*model.Instance(nil), instances.Instances...)), nil
}

// degraded reports whether candidates' unhealthy share exceeds the
// configured threshold, in which case this match level should be skipped
// in favor of a wider one.
func (r *NearbyBasedRouter) degraded(candidates []*model.Instance) bool {
	if !r.EnableDegradeByUnhealthyPercent || len(candidates) == 0 {
		return false
	}
	unhealthy := 0
	for _, inst := range candidates {
		if !inst.Healthy {
			unhealthy++
		}
	}
	return unhealthy*100/len(candidates) >= r.UnhealthyPercentToDegrade
}
