// Package openapi describes the key-gated public movie API as an OpenAPI
// 3.1 document built with kin-openapi.
package openapi

import (
	"reflect"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/reelvault/reelvault/internal/model"
)

// DefaultKeyHeader is the header carrying the API key unless configured
// otherwise.
const DefaultKeyHeader = "X-API-Key"

// GeneratePublicSpec returns the OpenAPI document for /api/movies. header is
// the name of the API key header the gateway reads.
func GeneratePublicSpec(baseURL, version, header string) *openapi3.T {
	if header == "" {
		header = DefaultKeyHeader
	}
	if version == "" {
		version = "1.0.0"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "reelvault public API",
			Description: "Read-only movie catalog. Every request must carry an API key issued by an administrator.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: header,
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
	}

	doc.Components.Schemas["Movie"] = &openapi3.SchemaRef{
		Value: structSchema(reflect.TypeOf(model.Movie{})),
	}
	doc.Components.Schemas["Pagination"] = &openapi3.SchemaRef{
		Value: structSchema(reflect.TypeOf(model.Pagination{})),
	}
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
			Required: []string{"success", "message"},
		},
	}

	movieRef := openapi3.NewSchemaRef("#/components/schemas/Movie", nil)

	listSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"data": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: movieRef,
				}},
				"pagination": openapi3.NewSchemaRef("#/components/schemas/Pagination", nil),
			},
		},
	}
	itemSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"data":    movieRef,
			},
		},
	}

	doc.Paths = openapi3.NewPaths()
	doc.Paths.Set("/api/movies", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"movies"},
			Summary:     "List movies",
			Description: "Returns one page of movies, newest release first.",
			OperationID: "listMovies",
			Parameters:  listQueryParameters(),
			Responses:   newResponses("200", "A page of movies", listSchema, "401", "403", "500"),
		},
	})

	idParam := openapi3.NewPathParameter("id").
		WithDescription("The movie_id of the movie.").
		WithSchema(openapi3.NewStringSchema())
	doc.Paths.Set("/api/movies/{id}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"movies"},
			Summary:     "Get a movie",
			Description: "Returns a single movie and counts the view.",
			OperationID: "getMovie",
			Parameters:  openapi3.Parameters{&openapi3.ParameterRef{Value: idParam}},
			Responses:   newResponses("200", "The movie", itemSchema, "401", "403", "404", "500"),
		},
	})

	return doc
}

// listQueryParameters returns the paging and filter parameters of the
// movie listing.
func listQueryParameters() openapi3.Parameters {
	intSchema := func(lower float64, def int) *openapi3.Schema {
		return &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32", Min: &lower, Default: def}
	}
	limit := intSchema(1, 20)
	upper := float64(100)
	limit.Max = &upper

	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("page").
				WithDescription("1-based page number.").
				WithSchema(intSchema(1, 1)),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("limit").
				WithDescription("Movies per page, at most 100.").
				WithSchema(limit),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("search").
				WithDescription("Case-insensitive match on title, original title, or overview.").
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("genre").
				WithDescription("Only movies tagged with this genre.").
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("language").
				WithDescription("Only movies whose display or original language matches.").
				WithSchema(openapi3.NewStringSchema()),
		},
	}
}

var errorDescriptions = map[string]string{
	"400": "Bad request",
	"401": "API key missing",
	"403": "Invalid API key",
	"404": "Not found",
	"429": "Too many requests",
	"500": "Internal server error",
}

// newResponses builds a Responses map with a success response and the
// listed error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, code := range errorCodes {
		desc := errorDescriptions[code]
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
