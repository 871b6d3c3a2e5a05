// Package yandex drives the Yandex Maps UI: search and zoom, result-list
// materialization, decoy and target interaction, and account login. It is
// the production implementation of the acquire.Driver contract.
package yandex

// Semantic selectors of the maps UI. The pipeline never inspects markup
// beyond the visible text of these.
const (
	selSearchInput     = `input.input__control`
	selScrollContainer = `.scroll__container`
	selSnippet         = `.search-snippet-view`
	selSnippetBody     = `.search-snippet-view__body`
	selSnippetTitle    = `.search-business-snippet-view__title`
	selSnippetAddress  = `.search-business-snippet-view__address`
	selBusinessCard    = `.business-card-view`
	selCardHeader      = `.orgpage-header-view__header`
	selSearchSidebar   = `.sidebar-view._name_search-result`

	selZoomIn  = `button[aria-label="Приблизить"]`
	selZoomOut = `button[aria-label="Отдалить"]`

	selOverviewTab = `div._name_overview`
	selGalleryTab  = `div._name_gallery`
	selReviewsTab  = `div._name_reviews`

	selMediaWrapper = `.media-wrapper`
	selMediaClose   = `.media-header__button._type_close`

	selReviewSort       = `.rating-ranking-view`
	selReviewSortPopup  = `.rating-ranking-view__popup`
	selReviewSortOption = `.rating-ranking-view__popup-line`

	selModalDialog = `.dialog._fullscreen`
	selModalClose  = `.close-button[aria-label="Закрыть"]`

	selCarouselNext = `.carousel__arrow-wrapper._centered._next`
	selCarouselPrev = `.carousel__arrow-wrapper._centered._prev`

	selWhatsAppLink = `[aria-label="Соцсети, whatsapp"]`
	selTelegramLink = `[aria-label="Соцсети, telegram"]`
	selWebsiteLink  = `[aria-label="Сайт"]`

	// The snippet body carries this class only for real businesses; curated
	// collections mixed into the stream do not.
	classBusiness = "_type_business"
)
