package api

import (
	"fmt"

	"sdvrp/internal/model"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if req.InstanceID == "" {
		return fmt.Errorf("instanceId is required")
	}
	if req.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	if req.MaxSeconds < 0 {
		return fmt.Errorf("maxSeconds must be >= 0")
	}
	if req.StagnationThreshold < 0 {
		return fmt.Errorf("stagnationThreshold must be >= 0")
	}
	if req.TenureMin < 0 || req.TenureMax < 0 {
		return fmt.Errorf("tenure bounds must be >= 0")
	}
	if req.TenureMin > 0 && req.TenureMax > 0 && req.TenureMin > req.TenureMax {
		return fmt.Errorf("tenureMin must not exceed tenureMax")
	}
	if req.Policy != "" && req.Policy != "best" && req.Policy != "first" {
		return fmt.Errorf("invalid policy: %s (allowed: best, first)", req.Policy)
	}
	if req.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}

func validateExternalSolution(in *model.ExternalSolutionIn) error {
	if in.InstanceID == "" {
		return fmt.Errorf("instanceId is required")
	}
	if in.Producer != "" && in.Producer != "exact" {
		return fmt.Errorf("invalid producer: %s (allowed: exact)", in.Producer)
	}
	if len(in.Routes) == 0 {
		return fmt.Errorf("routes must not be empty")
	}
	return nil
}
