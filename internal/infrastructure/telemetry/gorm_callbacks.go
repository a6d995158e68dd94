package telemetry

import (
	"fmt"

	"gorm.io/gorm"
)

// registerAround installs before/after callbacks on every gorm processor
// under the given name prefix.
func registerAround(db *gorm.DB, prefix string, before, after func(*gorm.DB)) error {
	cb := db.Callback()
	type registrar interface {
		Register(name string, fn func(*gorm.DB)) error
	}
	pairs := []struct {
		op     string
		before registrar
		after  registrar
	}{
		{"create", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")},
		{"query", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")},
		{"update", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")},
		{"delete", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")},
		{"row", cb.Row().Before("gorm:row"), cb.Row().After("gorm:row")},
		{"raw", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw")},
	}
	for _, p := range pairs {
		if before != nil {
			if err := p.before.Register(fmt.Sprintf("%s:before_%s", prefix, p.op), before); err != nil {
				return err
			}
		}
		if after != nil {
			if err := p.after.Register(fmt.Sprintf("%s:after_%s", prefix, p.op), after); err != nil {
				return err
			}
		}
	}
	return nil
}
