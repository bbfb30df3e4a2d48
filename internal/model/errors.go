package model

import "errors"

// Ошибки операций с кошельком и зависящих от него процессов.
var (
	// ErrInvalidAmount возвращается, если сумма операции не положительна.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrWalletNotFound возвращается, если кошелёк не найден.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletExists возвращается при повторном открытии кошелька пользователя.
	ErrWalletExists = errors.New("wallet already exists")
	// ErrConcurrentModification возвращается, если баланс не удалось обновить из-за конкурентных изменений.
	ErrConcurrentModification = errors.New("concurrent wallet modification")
	// ErrInvalidTransactionType возвращается, если тип операции не соответствует направлению.
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	// ErrInsufficientBalance возвращается, если средств на кошельке недостаточно.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBelowMinimum возвращается, если сумма пополнения меньше минимальной.
	ErrBelowMinimum = errors.New("amount below minimum")
	// ErrGatewayVerificationFailed возвращается, если платёжный шлюз не подтвердил платёж.
	ErrGatewayVerificationFailed = errors.New("gateway verification failed")
	// ErrDepositNotFound возвращается, если пополнение не найдено.
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrAlreadyProcessed возвращается при попытке изменить уже обработанную запись.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrWithdrawalNotFound возвращается, если заявка на вывод не найдена.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrInvalidDescription возвращается, если описание операции не проходит проверку длины.
	ErrInvalidDescription = errors.New("invalid description")

	// ErrInvalidTransition возвращается при недопустимом переходе состояния пакета.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrBundleNotFound возвращается, если пакет не найден.
	ErrBundleNotFound = errors.New("bundle not found")
	// ErrInvalidBundle возвращается при недопустимых параметрах пакета.
	ErrInvalidBundle = errors.New("invalid bundle parameters")
	// ErrInvalidQuantity возвращается, если количество вне допустимых пределов пакета.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrNotEligible возвращается, если пользователь не участвовал в предыдущих раундах.
	ErrNotEligible = errors.New("user is not eligible for this round")

	// ErrForbidden возвращается, если у пользователя нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
)
