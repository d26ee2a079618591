package mocks

//go:generate mockgen -destination=./mock_broker.go -package=mocks github.com/rxtech-lab/argo-trading/internal/gateway BrokerAdapter
//go:generate mockgen -destination=./mock_provider.go -package=mocks github.com/rxtech-lab/argo-trading/internal/data ProviderAdapter
//go:generate mockgen -destination=./mock_evaluator.go -package=mocks github.com/rxtech-lab/argo-trading/internal/evaluator SignalEvaluator
