package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
)

// pageFrom lee limit/offset de la query (valores por defecto en DefaultPage).
func pageFrom(c *fiber.Ctx) dto.PageRequest {
	p := dto.PageRequest{Limit: c.QueryInt("limit", 20), Offset: c.QueryInt("offset", 0)}
	p.DefaultPage()
	return p
}
