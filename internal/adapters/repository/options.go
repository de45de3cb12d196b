package repository

// CodeGenerator returns a candidate coupon code.
type CodeGenerator func() (string, error)

type options struct {
	newCode      CodeGenerator
	codeAttempts int
}

func defaultOptions() options {
	return options{
		newCode:      NewCouponCode,
		codeAttempts: 8,
	}
}

// Option configures a store.
type Option func(*options)

// WithCodeGenerator replaces the coupon code source.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(o *options) {
		if gen != nil {
			o.newCode = gen
		}
	}
}

// WithCodeAttempts bounds how many codes are tried before giving up.
func WithCodeAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.codeAttempts = n
		}
	}
}
