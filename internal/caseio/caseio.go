// Package caseio reads and writes the historical SD-VRP case formats: the
// instance file (header "n Q", a demand line, then n+1 coordinate lines with
// the depot first) and the solution file ("Total cost", one "Route i: 0 - c
// (q) - ... - 0" line per route, delivery count and truck loads).
package caseio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sdvrp/internal/model"
	"sdvrp/internal/opt"
)

// ParseInstance reads the case format into the core input schema.
func ParseInstance(r io.Reader) (opt.InstanceInput, error) {
	var in opt.InstanceInput
	sc := bufio.NewScanner(r)
	lines := []string{}
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" {
			lines = append(lines, t)
		}
	}
	if err := sc.Err(); err != nil {
		return in, err
	}
	if len(lines) < 3 {
		return in, fmt.Errorf("case file: want header, demands and coordinates, got %d lines", len(lines))
	}
	head := strings.Fields(lines[0])
	if len(head) < 2 {
		return in, fmt.Errorf("case file: header %q, want \"n Q\"", lines[0])
	}
	n, err := strconv.Atoi(head[0])
	if err != nil {
		return in, fmt.Errorf("case file: customer count: %w", err)
	}
	q, err := strconv.Atoi(head[1])
	if err != nil {
		return in, fmt.Errorf("case file: capacity: %w", err)
	}
	demands := strings.Fields(lines[1])
	if len(demands) != n {
		return in, fmt.Errorf("case file: %d demands, want %d", len(demands), n)
	}
	if len(lines) < 2+n+1 {
		return in, fmt.Errorf("case file: %d coordinate lines, want %d (depot + customers)", len(lines)-2, n+1)
	}
	coords := make([][2]float64, n+1)
	for i := 0; i <= n; i++ {
		f := strings.Fields(lines[2+i])
		if len(f) < 2 {
			return in, fmt.Errorf("case file: coordinate line %d: %q", i, lines[2+i])
		}
		x, err := strconv.ParseFloat(f[0], 64)
		if err != nil {
			return in, fmt.Errorf("case file: coordinate line %d: %w", i, err)
		}
		y, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			return in, fmt.Errorf("case file: coordinate line %d: %w", i, err)
		}
		coords[i] = [2]float64{x, y}
	}
	in.Capacity = q
	in.DepotX, in.DepotY = coords[0][0], coords[0][1]
	in.Customers = make([]opt.Customer, n)
	for i := 0; i < n; i++ {
		d, err := strconv.Atoi(demands[i])
		if err != nil {
			return in, fmt.Errorf("case file: demand %d: %w", i+1, err)
		}
		in.Customers[i] = opt.Customer{ID: i + 1, X: coords[i+1][0], Y: coords[i+1][1], Demand: d}
	}
	return in, nil
}

// RenderSolution writes s in the historical solution format.
func RenderSolution(w io.Writer, s *opt.Solution) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Total cost: %.2f\n", s.Cost())
	loads := make([]int, 0, len(s.Routes()))
	deliveries := 0
	for i, r := range s.Routes() {
		fmt.Fprintf(bw, "Route %d: 0", i+1)
		for _, st := range r.Stops() {
			fmt.Fprintf(bw, " - %d (%d)", st.Customer, st.Qty)
			deliveries++
		}
		fmt.Fprint(bw, " - 0\n")
		loads = append(loads, r.Load())
	}
	fmt.Fprintf(bw, "Number of deliveries: %d\n", deliveries)
	fmt.Fprint(bw, "Trucks loads:")
	for _, l := range loads {
		fmt.Fprintf(bw, " %d", l)
	}
	fmt.Fprint(bw, "\n")
	return bw.Flush()
}

// ParsedRoute is one route from a solution file: ordered (customer, quantity)
// deliveries.
type ParsedRoute struct {
	Stops []opt.Stop
}

// ParsedSolution is a solution file in schema form, producer-agnostic: the
// exact MIP path emits the same format.
type ParsedSolution struct {
	Cost   float64
	Routes []ParsedRoute
}

// ParseSolution reads the historical solution format, e.g. the output of the
// exact-solver path, for comparison against metaheuristic runs.
func ParseSolution(r io.Reader) (ParsedSolution, error) {
	var out ParsedSolution
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Total cost:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "Total cost:"))
			c, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return out, fmt.Errorf("solution file: total cost %q: %w", v, err)
			}
			out.Cost = c
		case strings.HasPrefix(line, "Route"):
			_, rest, ok := strings.Cut(line, ":")
			if !ok {
				return out, fmt.Errorf("solution file: route line %q", line)
			}
			var route ParsedRoute
			for _, part := range strings.Split(rest, " - ") {
				part = strings.TrimSpace(part)
				if part == "0" || part == "" {
					continue
				}
				name, qty, ok := strings.Cut(part, "(")
				if !ok {
					return out, fmt.Errorf("solution file: delivery %q", part)
				}
				c, err := strconv.Atoi(strings.TrimSpace(name))
				if err != nil {
					return out, fmt.Errorf("solution file: customer in %q: %w", part, err)
				}
				q, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(qty), ")")))
				if err != nil {
					return out, fmt.Errorf("solution file: quantity in %q: %w", part, err)
				}
				route.Stops = append(route.Stops, opt.Stop{Customer: c, Qty: q})
			}
			if len(route.Stops) > 0 {
				out.Routes = append(out.Routes, route)
			}
		}
	}
	return out, sc.Err()
}

// RenderInstance writes in back out in the case format. Coordinates keep
// their %g rendering, which round-trips integral values unchanged.
func RenderInstance(w io.Writer, in opt.InstanceInput) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", len(in.Customers), in.Capacity)
	for i, c := range in.Customers {
		if i > 0 {
			fmt.Fprint(bw, " ")
		}
		fmt.Fprintf(bw, "%d", c.Demand)
	}
	fmt.Fprint(bw, "\n")
	fmt.Fprintf(bw, "%g %g\n", in.DepotX, in.DepotY)
	for _, c := range in.Customers {
		fmt.Fprintf(bw, "%g %g\n", c.X, c.Y)
	}
	return bw.Flush()
}

// RenderSolutionOut writes a stored solution in the historical format.
func RenderSolutionOut(w io.Writer, s model.SolutionOut) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Total cost: %.2f\n", s.TotalCost)
	deliveries := 0
	for i, r := range s.Routes {
		fmt.Fprintf(bw, "Route %d: 0", i+1)
		for _, st := range r.Stops {
			fmt.Fprintf(bw, " - %d (%d)", st.Customer, st.Quantity)
			deliveries++
		}
		fmt.Fprint(bw, " - 0\n")
	}
	fmt.Fprintf(bw, "Number of deliveries: %d\n", deliveries)
	fmt.Fprint(bw, "Trucks loads:")
	for _, r := range s.Routes {
		fmt.Fprintf(bw, " %d", r.Load)
	}
	fmt.Fprint(bw, "\n")
	return bw.Flush()
}
