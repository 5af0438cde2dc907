package routes

import (
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/railcontrol/pkg/dispatcher"
)

const (
	viewBasic    = "basic"
	viewDetailed = "detailed"
)

// serviceDate is the date query parameter, today when it is missing.
func serviceDate(c *fiber.Ctx, d *dispatcher.Dispatcher) string {
	if date := c.Query("date"); date != "" {
		return date
	}
	return d.Today()
}

func view(c *fiber.Ctx) string {
	if c.Query("view") == viewDetailed {
		return viewDetailed
	}
	return viewBasic
}

func viewGroups(view string) []string {
	if view == viewDetailed {
		return []string{viewBasic, viewDetailed}
	}
	return []string{viewBasic}
}

func marshalView(value interface{}, view string) (interface{}, error) {
	return sheriff.Marshal(&sheriff.Options{
		Groups: viewGroups(view),
	}, value)
}

func sendView(c *fiber.Ctx, value interface{}) error {
	reduced, err := marshalView(value, view(c))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(reduced)
}

// sectionAllowed checks the caller's sections claim. Callers without one may
// use every section.
func sectionAllowed(c *fiber.Ctx, sectionID string) bool {
	sections, ok := c.Locals("account_sections").([]string)
	if !ok || len(sections) == 0 {
		return true
	}
	return slices.Contains(sections, "*") || slices.Contains(sections, sectionID)
}

func sendForbidden(c *fiber.Ctx, sectionID string) error {
	c.SendStatus(fiber.StatusForbidden)
	return c.JSON(fiber.Map{
		"error": "Not authorised for section " + sectionID,
	})
}

func accountID(c *fiber.Ctx) string {
	userID, _ := c.Locals("account_userid").(string)
	return userID
}
