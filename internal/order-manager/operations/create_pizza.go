package operations

import (
	"context"
	"fmt"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-manager/events"
	"pizza-flow-service/internal/order-manager/notify"
)

// KindCreatePizza identifies the pizza creation operation.
const KindCreatePizza = "create_pizza"

const createPizzaSchema = `{
	"type": "object",
	"required": ["name", "region", "tier"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"region": {"type": "string", "minLength": 1},
		"tier": {"type": "string", "enum": ["standard", "premium"]},
		"delivery_address": {"type": "string"}
	}
}`

// CreatePizza runs a pizza order through dough, toppings, oven and delivery.
type CreatePizza struct {
	Base
	notifier notify.Notifier
}

func NewCreatePizza(notifier notify.Notifier) *CreatePizza {
	return &CreatePizza{notifier: notifier}
}

func (*CreatePizza) Identifier() string { return KindCreatePizza }

func (*CreatePizza) TaskNames() []string {
	return []string{"make_dough", "add_toppings", "bake_pizza", "deliver_pizza"}
}

func (*CreatePizza) Dependencies(taskName string) []string {
	deps := map[string][]string{
		"add_toppings":  {"make_dough"},
		"bake_pizza":    {"add_toppings"},
		"deliver_pizza": {"bake_pizza"},
	}
	return deps[taskName]
}

func (*CreatePizza) ParameterSchema() string { return createPizzaSchema }

func (p *CreatePizza) TaskParameters(op *models.Operation, taskName string) models.JSONMap {
	name := op.Parameters.String("name", "pizza")
	tier := op.Parameters.String("tier", "standard")
	switch taskName {
	case "make_dough":
		return models.JSONMap{"name": name, "ingredients": ingredientsForTier(tier)}
	case "add_toppings":
		return models.JSONMap{"name": name, "toppings": toppingsForTier(tier)}
	case "bake_pizza":
		// Temperature in Celsius, time in minutes.
		return models.JSONMap{"name": name, "temperature": 350, "time": 12}
	case "deliver_pizza":
		return models.JSONMap{
			"name":             name,
			"delivery_address": op.Parameters.String("delivery_address", "Customer Address"),
		}
	}
	return op.Parameters
}

func (p *CreatePizza) OnStarted(ctx context.Context, op *models.Operation) {
	p.notifier.Milestone(ctx, "started_pizza_creation", models.JSONMap{
		"operation_id": op.UUID,
		"region":       op.Parameters.String("region", DefaultRegion),
		"tier":         op.Parameters.String("tier", "standard"),
		"status":       string(op.Status),
	})
	p.notifier.Milestone(ctx, events.PizzaUpdate, models.JSONMap{
		"operation_id": op.UUID,
		"status":       "order_accepted",
	})
}

func (p *CreatePizza) OnAllTasksCompleted(ctx context.Context, op *models.Operation) {
	p.notifier.Milestone(ctx, events.PizzaUpdate, models.JSONMap{
		"operation_id": op.UUID,
		"status":       "completed",
		"message":      fmt.Sprintf("Your %s pizza has been delivered!", op.Parameters.String("name", "pizza")),
	})
}

func ingredientsForTier(tier string) models.JSONMap {
	// Grams for solids, ml for liquids.
	ingredients := models.JSONMap{
		"flour":     500,
		"water":     300,
		"yeast":     10,
		"salt":      10,
		"olive_oil": 15,
	}
	if tier == "premium" {
		ingredients["special_flour"] = 100
	}
	return ingredients
}

func toppingsForTier(tier string) []string {
	toppings := []string{"tomato_sauce", "mozzarella"}
	switch tier {
	case "standard":
		toppings = append(toppings, "basil")
	case "premium":
		toppings = append(toppings, "basil", "parmesan", "truffle_oil")
	}
	return toppings
}
