package perf

import (
	"testing"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
)

// Synthesizes a wide three-level permission set: top-level sections, menus
// under each section and action buttons under each menu. Sized well past
// any realistic deployment so regressions show up before production does.
func syntheticPermissions(sections, menusPer, buttonsPer int) []permissions.Permission {
	perms := make([]permissions.Permission, 0, sections*(1+menusPer*(1+buttonsPer)))
	nextID := int64(1)
	for s := 0; s < sections; s++ {
		sectionID := nextID
		nextID++
		order := s
		perms = append(perms, permissions.Permission{
			ID: sectionID, Kind: permissions.KindMenu, Enable: true, Show: true, Order: &order,
		})
		for m := 0; m < menusPer; m++ {
			menuID := nextID
			nextID++
			menuOrder := m
			parent := sectionID
			perms = append(perms, permissions.Permission{
				ID: menuID, Kind: permissions.KindMenu, ParentID: &parent, Enable: true, Show: true, Order: &menuOrder,
			})
			for b := 0; b < buttonsPer; b++ {
				buttonID := nextID
				nextID++
				buttonOrder := b
				menuParent := menuID
				perms = append(perms, permissions.Permission{
					ID: buttonID, Kind: permissions.KindButton, ParentID: &menuParent, Enable: true, Order: &buttonOrder,
				})
			}
		}
	}
	return perms
}

func BenchmarkBuildFullTree(b *testing.B) {
	perms := syntheticPermissions(10, 20, 8)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		forest := permissions.Build(perms, permissions.All)
		if permissions.CountNodes(forest) != len(perms) {
			b.Fatal("lost nodes during build")
		}
	}
}

func BenchmarkBuildMenuTree(b *testing.B) {
	perms := syntheticPermissions(10, 20, 8)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		permissions.Build(perms, permissions.VisibleMenus)
	}
}

func BenchmarkFilterScopedTree(b *testing.B) {
	perms := syntheticPermissions(10, 20, 8)
	forest := permissions.Build(perms, permissions.All)

	// Grant roughly half the set, always including the section roots so
	// the filter actually descends.
	granted := make(map[int64]struct{}, len(perms)/2)
	for _, p := range perms {
		if p.ParentID == nil || p.ID%2 == 0 {
			granted[p.ID] = struct{}{}
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scoped := permissions.Filter(forest, granted)
		if len(scoped) == 0 {
			b.Fatal("filter dropped every root")
		}
	}
}
