/*
Package schema defines the declarative resource descriptor.

A resource is described once, in YAML, and everything else (collection name,
route table, field projection) is derived from that description by convention.

# Resource Definition

A minimal descriptor:

	module: product

	schema:
	  name:        { type: string, required: true }
	  price:       { type: number, required: true }
	  description: { type: string }
	  category:    { type: string }

	fields: [_id, name, price, description, category, createdAt, updatedAt]

When fields is omitted every schema field is exposed, together with the
implicit _id, createdAt and updatedAt fields.

# Field Types

  - string:    Text value
  - number:    Floating-point value
  - int:       Integer value
  - bool:      Boolean value
  - timestamp: RFC 3339 date/time string
  - enum:      One of a set of values (requires values)
  - json:      Arbitrary JSON object
  - strings:   Array of strings

# Routes

Route generation can be tuned per resource:

	routes:
	  pluralize: false        # /api/v1/product instead of /api/v1/products
	  disable: [delete]       # suppress individual CRUD operations
*/
package schema
