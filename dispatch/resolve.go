package dispatch

var servicePaths = map[ServiceType]string{
	TokenGuard:   "/scan",
	TrustGuard:   "/validate",
	ContextGuard: "/analyze",
	BiasGuard:    "/process",
	HealthGuard:  "/analyze",
}

// Resolve devolve o path do backend para o tipo de serviço.
func Resolve(t ServiceType) (string, error) {
	p, ok := servicePaths[t]
	if !ok {
		return "", &UnsupportedServiceTypeError{Value: string(t)}
	}
	return p, nil
}
