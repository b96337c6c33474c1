package messages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BatmanBruc/paygate-bot/internal/i18n"
	"github.com/BatmanBruc/paygate-bot/types"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func pick(lang i18n.Lang, en, ru string) string {
	if lang == i18n.RU {
		return ru
	}
	return en
}

func Price(p types.Plan) string {
	amount := p.Amount()
	amount = strings.TrimSuffix(amount, ".00")
	switch strings.ToLower(p.Currency) {
	case "usd":
		return "$" + amount
	case "eur":
		return "€" + amount
	default:
		return amount + " " + strings.ToUpper(p.Currency)
	}
}

func BenefitText(lang i18n.Lang, b types.Benefit) string {
	if b.Lifetime {
		return pick(lang, "lifetime", "навсегда")
	}
	switch {
	case b.Minutes%1440 == 0:
		days := b.Minutes / 1440
		return pick(lang, plural(days, "day", "days"), strconv.Itoa(days)+" дн.")
	case b.Minutes%60 == 0:
		hours := b.Minutes / 60
		return pick(lang, plural(hours, "hour", "hours"), strconv.Itoa(hours)+" ч.")
	default:
		return pick(lang, plural(b.Minutes, "min", "mins"), strconv.Itoa(b.Minutes)+" мин.")
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

func PlanButton(lang i18n.Lang, p types.Plan) string {
	return fmt.Sprintf("%s: %s (%s)", p.ID, Price(p), BenefitText(lang, p.Benefit()))
}

func Catalog(lang i18n.Lang, plans []types.Plan) string {
	var sb strings.Builder
	sb.WriteString(pick(lang, "💳 <b>Choose a plan</b>\n", "💳 <b>Выберите тариф</b>\n"))
	for _, p := range plans {
		sb.WriteString("\n• ")
		sb.WriteString(Escape(PlanButton(lang, p)))
	}
	sb.WriteString(pick(lang,
		"\n\nTap a button or send the plan number.",
		"\n\nНажмите кнопку или отправьте номер тарифа."))
	return sb.String()
}

func Help(lang i18n.Lang) string {
	return pick(lang,
		"ℹ️ <b>Commands</b>\n/start — choose a plan\n/stop — stop the active access\n/help — this message",
		"ℹ️ <b>Команды</b>\n/start — выбрать тариф\n/stop — остановить доступ\n/help — это сообщение")
}

func ErrorDefault(lang i18n.Lang) string {
	return pick(lang, "🚫 <b>Error</b>\nPlease try again.", "🚫 <b>Ошибка</b>\nПопробуйте ещё раз.")
}

func InvalidOption(lang i18n.Lang) string {
	return pick(lang, "❓ <b>Invalid option</b>\nSend one of the plan numbers.", "❓ <b>Неверный вариант</b>\nОтправьте номер тарифа.")
}

func InvoiceError(lang i18n.Lang) string {
	return pick(lang, "❌ <b>Error creating invoice</b>\nPlease pick a plan again.", "❌ <b>Не удалось создать счёт</b>\nВыберите тариф ещё раз.")
}

func PaymentLink(lang i18n.Lang, p types.Plan, url string) string {
	return fmt.Sprintf(pick(lang,
		"🔗 <a href=\"%s\">Pay %s</a>\n\nAccess for %s is unlocked as soon as the payment is confirmed.",
		"🔗 <a href=\"%s\">Оплатить %s</a>\n\nДоступ на %s откроется сразу после подтверждения оплаты."),
		Escape(url), Escape(Price(p)), BenefitText(lang, p.Benefit()))
}

func WaitingForPayment(lang i18n.Lang) string {
	return pick(lang, "⏳ <b>Waiting for payment</b>\nUse /start to pick another plan.", "⏳ <b>Ожидаем оплату</b>\n/start — выбрать другой тариф.")
}

func PayFirst(lang i18n.Lang) string {
	return pick(lang, "❗ You must pay first. Use /start to pick a plan.", "❗ Сначала нужно оплатить. /start — выбрать тариф.")
}

func PaymentConfirmed(lang i18n.Lang) string {
	return pick(lang, "✅ <b>Payment confirmed!</b>\nSend the target to continue.", "✅ <b>Оплата подтверждена!</b>\nОтправьте цель, чтобы продолжить.")
}

func LifetimeVerified(lang i18n.Lang) string {
	return pick(lang, "✅ <b>Lifetime access verified.</b>\nSend the target to continue.", "✅ <b>Бессрочный доступ подтверждён.</b>\nОтправьте цель, чтобы продолжить.")
}

func LifetimeIssued(lang i18n.Lang, credential string) string {
	return fmt.Sprintf(pick(lang,
		"🔑 Your lifetime access code: <code>%s</code>\nSend it any time to restore access.",
		"🔑 Ваш код бессрочного доступа: <code>%s</code>\nОтправьте его в любой момент, чтобы восстановить доступ."),
		Escape(credential))
}

func InvalidTarget(lang i18n.Lang) string {
	return pick(lang, "❓ <b>Invalid target</b>\nSend 7 to 15 digits, optionally starting with +.", "❓ <b>Неверная цель</b>\nОтправьте от 7 до 15 цифр, можно с + в начале.")
}

func Started(lang i18n.Lang, target string, b types.Benefit) string {
	return fmt.Sprintf(pick(lang,
		"✅ <b>Access activated</b> for <code>%s</code>\n⏳ Duration: %s\n/stop — stop it early",
		"✅ <b>Доступ активирован</b> для <code>%s</code>\n⏳ Срок: %s\n/stop — остановить досрочно"),
		Escape(target), BenefitText(lang, b))
}

func StoppedConfirmation(lang i18n.Lang) string {
	return pick(lang, "🛑 <b>Stopped.</b>\nUse /start to begin again.", "🛑 <b>Остановлено.</b>\n/start — начать заново.")
}

func NothingToStop(lang i18n.Lang) string {
	return pick(lang, "🤷 Nothing to stop.", "🤷 Нечего останавливать.")
}

func UseStopOrStart(lang i18n.Lang) string {
	return pick(lang, "ℹ️ Use /stop or /start.", "ℹ️ Используйте /stop или /start.")
}
