// Package ledger moves reward money between publishers and occupiers and
// records each movement as a Transaction.
//
// Every ledger operation changes the tasks, users and transactions
// collections in one store transaction, so a wallet is never debited
// without the matching task and ledger update.
//
// Money rules:
//   - AddReward debits the publisher and raises the task's reward.
//   - PayReward debits the publisher, credits the occupier and raises
//     reward_paid. It never lets reward_paid exceed reward or a wallet go
//     negative.
//   - ConfirmPayment settles a task in full: both confirmed amounts and
//     reward_paid become the reward. It records the settlement but moves no
//     wallet money, and calling it again changes nothing.
package ledger
