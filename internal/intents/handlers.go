package intents

import (
	"fmt"
	"strings"

	"mesh-agent/internal/extract"
	"mesh-agent/internal/models"
)

// registerAll wires every intent in precedence order. Escalating intents go
// first so a frustrated customer is never answered with a canned FAQ line.
func (r *Router) registerAll() {
	r.register("human_request", r.handleHumanRequest,
		`\b(human|real person|an agent|attendant|representative|someone real)\b`,
		`\btalk (to|with) (a person|someone)\b`,
		`\bspeak (to|with) (a person|someone|a human)\b`)

	r.register("frustration", r.handleFrustration,
		`\b(useless|you don'?t understand|not helping|this is ridiculous|waste of time)\b`,
		`\bstop (sending|offering)\b`)

	r.register("affirmative_after_quote", r.handleAffirmativeAfterQuote,
		`^(yes|yeah|yep|sure|ok|okay|i want it|i'?ll take it|sounds good|perfect|deal)\b`)

	r.register("location_after_shipping", r.handleLocationAfterShipping,
		`^[a-z][a-z .]{1,40},\s*[a-z]{2}$`,
		`\b\d{4,8}\b`)

	r.register("shipping", r.handleShipping,
		`\b(ship|shipping|deliver|delivery|send (it|to)|freight)\b`)

	r.register("delivery_time", r.handleDeliveryTime,
		`\bhow long\b.*\b(arrive|delivery|get here|take)\b`,
		`\bdelivery time\b`,
		`\bwhen (will|does) (it|my order) (arrive|come|get here)\b`)

	r.register("pay_on_delivery", r.handlePayOnDelivery,
		`\b(cash|pay) on delivery\b`,
		`\bpay when (it arrives|i receive)\b`,
		`\bcod\b`)

	r.register("payment", r.handlePayment,
		`\b(payment|pay with|credit card|debit card|installment|bank transfer|how (do|can) i pay)\b`)

	r.register("invoice", r.handleInvoice,
		`\b(invoice|receipt|tax document)\b`)

	r.register("pickup", r.handlePickup,
		`\b(pick ?up|pick it up|collect (it|in person|from the store)|come get)\b`)

	r.register("store_location", r.handleStoreLocation,
		`\bwhere (are you|is the store|are you located)\b`,
		`\b(your|store) address\b`,
		`\bphysical store\b`)

	r.register("business_hours", r.handleBusinessHours,
		`\b(opening|business) hours\b`,
		`\bwhat time (do you|are you) (open|close)\b`,
		`\bopen (today|tomorrow|on saturday|on sunday|now)\b`)

	r.register("order_status", r.handleOrderStatus,
		`\b(my order|order status|track(ing)? (my|the) (order|package))\b`,
		`\balready (bought|ordered|paid)\b`)

	r.register("weed_control", r.handleWeedControl,
		`\b(weed|ground cover|landscape fabric|against grass)\b`)

	r.register("waterproofing", r.handleWaterproofing,
		`\b(waterproof|water proof|block(s)? (the )?rain|stop(s)? (the )?rain|rain cover)\b`)

	r.register("percentage_education", r.handlePercentageEducation,
		`\bwhich (percentage|shade|one) (should|do) i\b`,
		`\bdifference between \d{2}%? and \d{2}%?\b`,
		`\bwhat does \d{2}%? mean\b`,
		`\bwhat percentage\b`)

	r.register("custom_size", r.handleCustomSize,
		`\b(custom|any|exact|specific|made to measure) size\b`,
		`\bcut to (size|measure)\b`)

	r.register("wholesale", r.handleWholesale,
		`\b(wholesale|bulk|large (quantity|order)|resell|discount for quantity)\b`)

	r.register("catalog_request", r.handleCatalogRequest,
		`\b(catalog|catalogue|price list|full list|all (your )?products)\b`)

	r.register("samples", r.handleSamples,
		`\b(sample|swatch)\b`)

	r.register("colors", r.handleColors,
		`\b(what|which|available) colou?rs?\b`,
		`\bcolou?r options\b`,
		`\bcome(s)? in (other|different) colou?rs?\b`)

	r.register("material", r.handleMaterial,
		`\bwhat('s| is) (it|the mesh) made (of|from)\b`,
		`\b(hdpe|polyethylene|material of\b)`)

	r.register("uv_protection", r.handleUVProtection,
		`\buv\b`,
		`\b(sun protection|fade|fading)\b`)

	r.register("lifespan", r.handleLifespan,
		`\bhow long does (it|the mesh) last\b`,
		`\b(lifespan|durab(le|ility))\b`)

	r.register("installation", r.handleInstallation,
		`\b(install|installation|how (do|to) (i )?(fix|hang|attach|put (it )?up))\b`)

	r.register("accessories", r.handleAccessories,
		`\b(clip|clips|hook|hooks|wire|rope|fastener|grommet|eyelet)s?\b`)

	r.register("warranty", r.handleWarranty,
		`\b(warranty|guarantee)\b`)

	r.register("returns", r.handleReturns,
		`\b(return it|returns?|refund|exchange)\b`)

	r.register("thanks", r.handleThanks,
		`^(thank(s| you)?|thx|appreciated|great, thanks)\b`)

	r.register("greeting", r.handleGreeting,
		`^(hi|hello|hey|good (morning|afternoon|evening))[!. ]*$`)
}

func (r *Router) handleHumanRequest(conv *models.Conversation, _ string) *Result {
	return &Result{Escalate: true, EscalationReason: "customer asked for a human"}
}

func (r *Router) handleFrustration(conv *models.Conversation, _ string) *Result {
	return &Result{Escalate: true, EscalationReason: "customer sounds frustrated"}
}

// handleAffirmativeAfterQuote only fires when there is a quote on the table;
// a bare "ok" with no quoted product belongs to whatever flow is active. A
// pending alternative offer owns the next yes/no, so the flow resolves it.
func (r *Router) handleAffirmativeAfterQuote(conv *models.Conversation, _ string) *Result {
	if conv.PendingOffer != nil {
		return nil
	}
	quoted := conv.LastQuoted()
	if len(quoted) == 0 {
		return nil
	}
	if len(quoted) > 1 {
		return textResult("Great! Which of the sizes I quoted would you like to go with?")
	}
	p := quoted[0]
	if p.URL != "" {
		return textResult(fmt.Sprintf(
			"Great choice! You can complete your order for the %s here: %s. If you prefer, I can also hand you to our team to finish by message.",
			p.Name, p.URL))
	}
	return textResult(fmt.Sprintf(
		"Great choice! I'll get the purchase link for the %s ready for you in a moment.",
		p.Name))
}

// handleLocationAfterShipping captures the city or postal code the customer
// sends right after a shipping question. Any other time, a bare location is
// not an intent.
func (r *Router) handleLocationAfterShipping(conv *models.Conversation, message string) *Result {
	if conv.LastIntent != "shipping" {
		return nil
	}
	loc := extract.ParseLocation(message)
	if loc == nil {
		return nil
	}
	conv.City = loc.City
	conv.State = loc.State
	conv.PostalCode = loc.PostalCode
	return textResult("Thanks! We ship there. The exact shipping cost is calculated at checkout from your address, and I'll include it in any quote link I send you.")
}

func (r *Router) handleShipping(conv *models.Conversation, _ string) *Result {
	if conv.HasLocality() {
		return textResult("Yes, we ship nationwide! Shipping to your area is calculated at checkout based on size and weight.")
	}
	return textResult("Yes, we ship nationwide! Could you tell me your city and state, or your postal code, so I can confirm delivery to your area?")
}

func (r *Router) handleDeliveryTime(conv *models.Conversation, _ string) *Result {
	return textResult("Orders are cut and dispatched within 2 business days. Transit time depends on your region, usually 3 to 10 business days after dispatch.")
}

func (r *Router) handlePayOnDelivery(conv *models.Conversation, _ string) *Result {
	return textResult("We don't offer cash on delivery. Since every mesh is cut to order, payment is confirmed before production, but checkout supports card, transfer and installments.")
}

func (r *Router) handlePayment(conv *models.Conversation, _ string) *Result {
	return textResult("We accept credit and debit cards, bank transfer, and installment plans at checkout. Everything is processed on our secure store page.")
}

func (r *Router) handleInvoice(conv *models.Conversation, _ string) *Result {
	return textResult("Every order ships with a full invoice. If you need it issued to a company, just fill in the company details at checkout.")
}

func (r *Router) handlePickup(conv *models.Conversation, _ string) *Result {
	return textResult(fmt.Sprintf(
		"You're welcome to pick up your order at our store in %s once it's ready, at no shipping cost. Just choose pickup at checkout.",
		r.business.StoreLocation))
}

func (r *Router) handleStoreLocation(conv *models.Conversation, _ string) *Result {
	return textResult(fmt.Sprintf("Our store is at %s. You can buy online or pick up in person.", r.business.StoreLocation))
}

func (r *Router) handleBusinessHours(conv *models.Conversation, _ string) *Result {
	text := fmt.Sprintf("We're open Monday to Friday, %dh to %dh", r.business.OpenHour, r.business.CloseHour)
	if r.business.OpenSaturday {
		text += ", and Saturday mornings"
	}
	return textResult(text + ".")
}

func (r *Router) handleOrderStatus(conv *models.Conversation, _ string) *Result {
	return &Result{Escalate: true, EscalationReason: "customer asking about an existing order"}
}

func (r *Router) handleWeedControl(conv *models.Conversation, _ string) *Result {
	return textResult("Shade mesh lets light and water through, so it won't stop weeds. For weed control you'd want a dedicated ground cover fabric, which we don't carry, our meshes are for shading.")
}

func (r *Router) handleWaterproofing(conv *models.Conversation, _ string) *Result {
	return textResult("Our shade mesh is knitted, so it softens rain but does not block it. If you need a dry area underneath you'd want a waterproof tarp instead, the mesh is made for sun protection and airflow.")
}

func (r *Router) handlePercentageEducation(conv *models.Conversation, _ string) *Result {
	return textResult("The percentage is how much sunlight the mesh blocks. 50% suits plants that still want light, 80% is the all-rounder for patios and cars, and 90% gives deep shade for people and pets. Tell me what you'll cover and I'll suggest one.")
}

func (r *Router) handleCustomSize(conv *models.Conversation, _ string) *Result {
	return textResult("Every mesh is cut to order, so yes, we make your exact size. Just send me the width and height you need, like 4x6 meters, and I'll quote it.")
}

func (r *Router) handleWholesale(conv *models.Conversation, _ string) *Result {
	return &Result{Escalate: true, EscalationReason: "wholesale inquiry"}
}

func (r *Router) handleCatalogRequest(conv *models.Conversation, _ string) *Result {
	if r.business.CatalogURL != "" {
		return textResult(fmt.Sprintf("Here's our full catalog: %s. If you tell me the size and shade you need, I can quote it right here too.", r.business.CatalogURL))
	}
	return textResult("If you tell me the size and shade percentage you need, I'll quote it right here. We carry 50%, 80% and 90% shade mesh in any size.")
}

func (r *Router) handleSamples(conv *models.Conversation, _ string) *Result {
	return textResult("We don't send loose samples, but our smallest meshes are inexpensive and make a good trial. Want me to quote a small one in the shade you're considering?")
}

func (r *Router) handleColors(conv *models.Conversation, _ string) *Result {
	return textResult("Our meshes come in green, black and beige. Green and black are the most popular for gardens and carports, beige blends in on patios.")
}

func (r *Router) handleMaterial(conv *models.Conversation, _ string) *Result {
	return textResult("The mesh is knitted HDPE (high-density polyethylene) with UV stabilizers, so it won't unravel when cut and holds up for years outdoors.")
}

func (r *Router) handleUVProtection(conv *models.Conversation, _ string) *Result {
	return textResult("All our meshes are UV stabilized. They block the stated percentage of sunlight and resist fading and degradation from sun exposure.")
}

func (r *Router) handleLifespan(conv *models.Conversation, _ string) *Result {
	return textResult("With normal outdoor use the mesh lasts 5 years or more. It's UV stabilized, so sun exposure won't break it down quickly.")
}

func (r *Router) handleInstallation(conv *models.Conversation, _ string) *Result {
	return textResult("Installation is simple: the edges are reinforced, so you stretch the mesh and fix it with clips, hooks or rope at the corners and along the sides. No special tools needed.")
}

func (r *Router) handleAccessories(conv *models.Conversation, _ string) *Result {
	return textResult("Yes, we carry fixing kits with clips and rope sized for our meshes. I can add one to your quote if you'd like.")
}

func (r *Router) handleWarranty(conv *models.Conversation, _ string) *Result {
	return textResult("All meshes have a 1-year warranty against manufacturing defects, on top of the UV-stabilized material's expected lifespan of several years.")
}

func (r *Router) handleReturns(conv *models.Conversation, _ string) *Result {
	return textResult("Since each mesh is cut to your measurements we can't resell returns, but if anything arrives damaged or isn't what you ordered, we replace it at no cost. Just send us a photo.")
}

func (r *Router) handleThanks(conv *models.Conversation, _ string) *Result {
	return textResult("You're welcome! If you need anything else, just send me a message.")
}

// handleGreeting only answers a message that is nothing but a greeting.
// "hi, how much is the 4x6" should fall through to the flow.
func (r *Router) handleGreeting(conv *models.Conversation, message string) *Result {
	if len(strings.Fields(message)) > 3 {
		return nil
	}
	return textResult("Hi! I can help you with quotes for shade mesh in any size. What will you be covering?")
}
