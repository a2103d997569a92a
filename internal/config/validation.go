package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for required fields and valid values.
// Struct-tag rules cover ranges and enums; the checks below cover what
// tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Control.Host == "" {
		return fmt.Errorf("config validation failed: control.host is required")
	}
	if c.Control.Database == "" {
		return fmt.Errorf("config validation failed: control.database is required")
	}

	for name, db := range c.Regions {
		if name == "" {
			return fmt.Errorf("config validation failed: region name cannot be empty")
		}
		if db.Host == "" {
			return fmt.Errorf("config validation failed: regions.%s.host is required", name)
		}
		if db.Database == "" {
			return fmt.Errorf("config validation failed: regions.%s.database is required", name)
		}
	}

	if c.Retention.DeleteMinAgeDays < c.Retention.ArchiveMinAgeDays {
		return fmt.Errorf("config validation failed: retention.delete_min_age_days must be >= archive_min_age_days")
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
