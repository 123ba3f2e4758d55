package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pizza-flow-service/internal/models"
)

// NewPizzaRegistry registers the pizza task capabilities of this worker.
func NewPizzaRegistry() *Registry {
	return NewRegistry(
		&MakeDough{},
		&AddToppings{},
		&BakePizza{oven: NewOven()},
		&DeliverPizza{},
	)
}

// MakeDough kneads the dough from the tier's ingredients.
type MakeDough struct{}

func (*MakeDough) Identifier() string { return "make_dough" }

func (*MakeDough) Run(ctx context.Context, exec *models.TaskExecution) error {
	log.Printf("Making dough for pizza %s with ingredients %v",
		exec.Parameters.String("name", "pizza"), exec.Parameters["ingredients"])
	sleep(ctx, time.Second)
	exec.Result = models.JSONMap{"dough": "done"}
	exec.Status = models.TaskCompleted
	return nil
}

// AddToppings spreads the tier's toppings.
type AddToppings struct{}

func (*AddToppings) Identifier() string { return "add_toppings" }

func (*AddToppings) Run(ctx context.Context, exec *models.TaskExecution) error {
	log.Printf("Adding toppings to pizza %s: %v",
		exec.Parameters.String("name", "pizza"), exec.Parameters["toppings"])
	// Adding toppings takes a bit longer.
	sleep(ctx, 1500*time.Millisecond)
	exec.Result = models.JSONMap{"toppings": "done"}
	exec.Status = models.TaskCompleted
	return nil
}

// BakePizza puts the pizza into the shared oven and polls it until baked,
// via the waiting status.
type BakePizza struct {
	oven *Oven
}

func (*BakePizza) Identifier() string { return "bake_pizza" }

func (b *BakePizza) Run(ctx context.Context, exec *models.TaskExecution) error {
	name := exec.Parameters.String("name", "pizza")
	if err := b.oven.Bake(name, paramSeconds(exec.Parameters["time"], 2)); err != nil {
		return err
	}
	exec.Status = models.TaskWaiting
	exec.WaitTime = 1
	return nil
}

func (b *BakePizza) OnWait(ctx context.Context, exec *models.TaskExecution) error {
	name := exec.Parameters.String("name", "pizza")
	done, err := b.oven.Check(name)
	if err != nil {
		return err
	}
	if !done {
		exec.Status = models.TaskWaiting
		return nil
	}
	if err := b.oven.Remove(name); err != nil {
		return err
	}
	exec.Result = models.JSONMap{"baked": "done"}
	exec.Status = models.TaskCompleted
	return nil
}

// DeliverPizza brings the pizza to the customer.
type DeliverPizza struct{}

func (*DeliverPizza) Identifier() string { return "deliver_pizza" }

func (*DeliverPizza) Run(ctx context.Context, exec *models.TaskExecution) error {
	address := exec.Parameters.String("delivery_address", "Customer Address")
	log.Printf("Delivering pizza %s to %s", exec.Parameters.String("name", "pizza"), address)
	// Delivery takes longest.
	sleep(ctx, 3*time.Second)
	exec.Result = models.JSONMap{"delivered_to": address}
	exec.Status = models.TaskCompleted
	return nil
}

// Oven bakes up to three pizzas at a time, asynchronously: Bake starts,
// Check polls, Remove frees the slot.
type Oven struct {
	mu     sync.Mutex
	baking map[string]time.Time // pizza name -> ready at
}

const ovenCapacity = 3

func NewOven() *Oven {
	return &Oven{baking: make(map[string]time.Time)}
}

func (o *Oven) Bake(name string, bakeFor time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.baking[name]; ok {
		return fmt.Errorf("pizza %s is already baking", name)
	}
	if len(o.baking) >= ovenCapacity {
		return errors.New("oven is full")
	}
	o.baking[name] = time.Now().Add(bakeFor)
	log.Printf("Baking pizza %s for %s", name, bakeFor)
	return nil
}

func (o *Oven) Check(name string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	readyAt, ok := o.baking[name]
	if !ok {
		return false, fmt.Errorf("pizza %s is not baking", name)
	}
	return !time.Now().Before(readyAt), nil
}

func (o *Oven) Remove(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.baking[name]; !ok {
		return fmt.Errorf("pizza %s is not baking", name)
	}
	delete(o.baking, name)
	return nil
}

// paramSeconds reads a numeric parameter as a duration in seconds. JSON
// numbers decode as float64.
func paramSeconds(v interface{}, def int) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second))
	case int:
		return time.Duration(n) * time.Second
	}
	return time.Duration(def) * time.Second
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
